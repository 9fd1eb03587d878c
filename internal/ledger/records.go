package ledger

import (
	"log/slog"
	"strings"

	"speza/internal/core"
)

// FromRecords converts a table whose first row is the header into
// transactions. Columns are located by header name. Rows are not
// validated: missing cells read as empty and an unparseable amount loads
// as zero but keeps its text for ToRecords.
func FromRecords(rows [][]string) []core.Transaction {
	out := []core.Transaction{}
	if len(rows) == 0 {
		return out
	}
	idx := headerIndex(rows[0])
	for n, rec := range rows[1:] {
		raw := cell(rec, idx, "Amount")
		t, ok := core.StoredTransaction(
			cell(rec, idx, "Date"),
			cell(rec, idx, "Type"),
			cell(rec, idx, "Category"),
			raw,
			cell(rec, idx, "Note"),
		)
		if !ok && raw != "" {
			slog.Debug("Unparseable amount loaded as zero", "row", n+1, "amount", raw)
		}
		out = append(out, t)
	}
	return out
}

// ToRecords renders the header followed by one row per transaction.
func ToRecords(txs []core.Transaction) [][]string {
	rows := make([][]string, 0, len(txs)+1)
	rows = append(rows, append([]string(nil), core.Header...))
	for _, t := range txs {
		rows = append(rows, t.Record())
	}
	return rows
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func cell(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}
