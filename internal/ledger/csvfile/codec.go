package csvfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"speza/internal/core"
	"speza/internal/ledger"
)

// Decode reads a ledger table. The first record is the header; see
// ledger.FromRecords for how rows are interpreted.
func Decode(r io.Reader) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return ledger.FromRecords(rows), nil
}

// Encode writes the header followed by one row per transaction.
func Encode(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(ledger.ToRecords(txs)); err != nil {
		return err
	}
	return cw.Error()
}

func encodeBytes(txs []core.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, txs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
