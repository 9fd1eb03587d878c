package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"speza/internal/core"
)

func sample() []core.Transaction {
	return []core.Transaction{
		{Date: "2024-01-05", Kind: core.KindIncome, Category: "Salary", Amount: 5000},
		{Date: "2024-01-09", Kind: core.KindExpense, Category: "Food", Amount: 200, Note: "groceries, weekly"},
		{Date: "2024-02-11", Kind: core.KindExpense, Category: "Rent", Amount: 1200},
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, sample()); err != nil {
		t.Fatalf("CSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Date,Type,Category,Amount,Note" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != `2024-01-09,Expense,Food,200,"groceries, weekly"` {
		t.Errorf("row = %q", lines[2])
	}
}

func TestCSVEmptyLedgerKeepsHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, nil); err != nil {
		t.Fatalf("CSV() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "Date,Type,Category,Amount,Note" {
		t.Errorf("got %q", got)
	}
}

func TestXLSX(t *testing.T) {
	txs := sample()
	var buf bytes.Buffer
	if err := XLSX(&buf, txs, core.Aggregate(txs)); err != nil {
		t.Fatalf("XLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != SheetTransactions || sheets[1] != SheetSummary {
		t.Fatalf("sheets = %v", sheets)
	}

	rows, err := f.GetRows(SheetTransactions)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != len(txs)+1 {
		t.Fatalf("got %d rows, want %d", len(rows), len(txs)+1)
	}
	if strings.Join(rows[0], ",") != "Date,Type,Category,Amount,Note" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[2][2] != "Food" || rows[2][4] != "groceries, weekly" {
		t.Errorf("row 2 = %v", rows[2])
	}

	v, err := f.GetCellValue(SheetSummary, "A4")
	if err != nil || v != "Balance" {
		t.Errorf("summary A4 = %q, %v", v, err)
	}
	raw, err := f.GetCellValue(SheetSummary, "B4", excelize.Options{RawCellValue: true})
	if err != nil || raw != "3600" {
		t.Errorf("balance = %q, %v", raw, err)
	}
}
