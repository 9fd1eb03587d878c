// Package export produces downloadable copies of the ledger.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"speza/internal/core"
	"speza/internal/ledger/csvfile"
)

const (
	SheetTransactions = "Transactions"
	SheetSummary      = "Summary"

	colorHeader  = "#00C896"
	colorIncome  = "#D4EFDF"
	colorExpense = "#FADBD8"
)

// CSV writes the ledger in the same layout as the CSV backend file.
func CSV(w io.Writer, txs []core.Transaction) error {
	if err := csvfile.Encode(w, txs); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}

type styles struct {
	header, income, expense, number, label int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{colorHeader}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{{Type: "bottom", Color: "#1E90FF", Style: 2}},
	}); err != nil {
		return s, err
	}
	if s.income, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{colorIncome}, Pattern: 1},
	}); err != nil {
		return s, err
	}
	if s.expense, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{colorExpense}, Pattern: 1},
	}); err != nil {
		return s, err
	}
	if s.number, err = f.NewStyle(&excelize.Style{
		NumFmt:    4, // #,##0.00
		Alignment: &excelize.Alignment{Horizontal: "right"},
	}); err != nil {
		return s, err
	}
	s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	return s, err
}

// XLSX builds a workbook with the rows on one sheet and the report on
// another.
func XLSX(w io.Writer, txs []core.Transaction, report core.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("export xlsx: styles: %w", err)
	}
	if err := f.SetSheetName("Sheet1", SheetTransactions); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	if err := writeTransactions(f, st, txs); err != nil {
		return fmt.Errorf("export xlsx: transactions: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	if err := writeSummary(f, st, report); err != nil {
		return fmt.Errorf("export xlsx: summary: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export xlsx: write: %w", err)
	}
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeTransactions(f *excelize.File, st styles, txs []core.Transaction) error {
	sh := SheetTransactions
	for i, h := range core.Header {
		if err := f.SetCellValue(sh, cellName(i+1, 1), h); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sh, "A1", cellName(len(core.Header), 1), st.header); err != nil {
		return err
	}

	for i, t := range txs {
		row := i + 2
		values := []any{t.Date, t.Kind, t.Category, t.Amount, t.Note}
		for c, v := range values {
			if err := f.SetCellValue(sh, cellName(c+1, row), v); err != nil {
				return err
			}
		}
		switch {
		case t.IsIncome():
			f.SetCellStyle(sh, cellName(1, row), cellName(3, row), st.income)
		case t.IsExpense():
			f.SetCellStyle(sh, cellName(1, row), cellName(3, row), st.expense)
		}
		f.SetCellStyle(sh, cellName(4, row), cellName(4, row), st.number)
	}

	for col, width := range map[string]float64{"A": 14, "B": 10, "C": 18, "D": 12, "E": 32} {
		if err := f.SetColWidth(sh, col, col, width); err != nil {
			return err
		}
	}
	return f.SetPanes(sh, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, st styles, r core.Report) error {
	sh := SheetSummary
	row := 1
	put := func(label string, v any) {
		f.SetCellValue(sh, cellName(1, row), label)
		f.SetCellStyle(sh, cellName(1, row), cellName(1, row), st.label)
		f.SetCellValue(sh, cellName(2, row), v)
		if _, ok := v.(float64); ok {
			f.SetCellStyle(sh, cellName(2, row), cellName(2, row), st.number)
		}
		row++
	}
	header := func(cols ...string) {
		for i, c := range cols {
			f.SetCellValue(sh, cellName(i+1, row), c)
		}
		f.SetCellStyle(sh, cellName(1, row), cellName(len(cols), row), st.header)
		row++
	}

	put("Transactions", r.Count)
	put("Total income", r.TotalIncome)
	put("Total expense", r.TotalExpense)
	put("Balance", r.Balance)
	put("Mood", r.Mood.Text)
	row++

	header("Category", "Expense")
	for _, c := range r.Categories {
		f.SetCellValue(sh, cellName(1, row), c.Name)
		f.SetCellValue(sh, cellName(2, row), c.Amount)
		f.SetCellStyle(sh, cellName(2, row), cellName(2, row), st.number)
		row++
	}
	row++

	header("Month", "Income", "Expense")
	for _, p := range r.MonthlySeries {
		f.SetCellValue(sh, cellName(1, row), p.Label)
		f.SetCellValue(sh, cellName(2, row), p.Income)
		f.SetCellValue(sh, cellName(3, row), p.Expense)
		f.SetCellStyle(sh, cellName(2, row), cellName(3, row), st.number)
		row++
	}

	return f.SetColWidth(sh, "A", "C", 18)
}
