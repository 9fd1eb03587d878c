package core

import (
	"errors"
	"fmt"
	"math"
)

// Canonical transaction kinds. Stored kinds are free-form; only these two
// take part in totals.
const (
	KindIncome  = "Income"
	KindExpense = "Expense"
)

// Header is the column order of the flat ledger file.
var Header = []string{"Date", "Type", "Category", "Amount", "Note"}

type (
	// Transaction is one recorded income or expense event.
	Transaction struct {
		ID       string  `json:"id,omitempty"`
		Date     string  `json:"date"`
		Kind     string  `json:"type"`
		Category string  `json:"category"`
		Amount   float64 `json:"amount"`
		Note     string  `json:"note"`

		// rawAmount holds a stored amount cell that did not parse.
		rawAmount    string
		hasRawAmount bool
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidIndex   = errors.New("invalid index")
	ErrNotFound       = errors.New("transaction not found")
	ErrIDsUnsupported = errors.New("backend does not support durable ids")
)

// NewTransaction builds a transaction from raw form values. Only the amount
// is checked; everything else is kept as given.
func NewTransaction(date, kind, category, amount, note string) (Transaction, error) {
	v, err := ParseAmount(amount)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Date:     date,
		Kind:     kind,
		Category: category,
		Amount:   v,
		Note:     note,
	}, nil
}

// StoredTransaction rebuilds a transaction read from storage without
// validating it. An amount cell that does not parse loads as zero and is
// written back verbatim by Record; ok reports whether it parsed.
func StoredTransaction(date, kind, category, amount, note string) (t Transaction, ok bool) {
	t = Transaction{Date: date, Kind: kind, Category: category, Note: note}
	if t.Amount, ok = LenientAmount(amount); !ok {
		t.rawAmount, t.hasRawAmount = amount, true
	}
	return t, ok
}

func (t Transaction) Validate() error {
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, t.Amount)
	}
	return nil
}

// IsIncome reports whether the transaction counts towards income totals.
func (t Transaction) IsIncome() bool { return t.Kind == KindIncome }

// IsExpense reports whether the transaction counts towards expense totals.
func (t Transaction) IsExpense() bool { return t.Kind == KindExpense }

// SameFields compares the five persisted fields, ignoring ID.
func (t Transaction) SameFields(o Transaction) bool {
	return t.Date == o.Date &&
		t.Kind == o.Kind &&
		t.Category == o.Category &&
		t.Amount == o.Amount &&
		t.Note == o.Note
}

// Record returns the persisted columns in Header order.
func (t Transaction) Record() []string {
	amount := FormatAmount(t.Amount)
	if t.hasRawAmount {
		amount = t.rawAmount
	}
	return []string{t.Date, t.Kind, t.Category, amount, t.Note}
}
