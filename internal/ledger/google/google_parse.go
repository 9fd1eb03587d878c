package google

import (
	"fmt"
	"strconv"
	"strings"

	"speza/internal/core"
)

// toRows converts the values matrix returned by the Sheets API into string
// records. Numbers come back as float64 with UNFORMATTED_VALUE.
func toRows(values [][]any) [][]string {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = toStrings(v)
	}
	return rows
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

// toValues renders the header and rows; amounts are written as numbers so
// the sheet can sum them.
func toValues(txs []core.Transaction) [][]any {
	values := make([][]any, 0, len(txs)+1)
	header := make([]any, len(core.Header))
	for i, h := range core.Header {
		header[i] = h
	}
	values = append(values, header)
	for _, t := range txs {
		values = append(values, []any{t.Date, t.Kind, t.Category, t.Amount, t.Note})
	}
	return values
}
