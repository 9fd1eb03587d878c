package core

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMoodThreshold is the income/expense gap under which spending is
// considered close to income.
const DefaultMoodThreshold = 2000

// MoodStatus is the three-valued savings indicator.
type MoodStatus string

const (
	MoodBad     MoodStatus = "bad"
	MoodNeutral MoodStatus = "neutral"
	MoodGood    MoodStatus = "good"
)

var moodTexts = map[MoodStatus]string{
	MoodBad:     "🔴 Caution! Expenses exceed income.",
	MoodNeutral: "🟡 You're spending close to your income.",
	MoodGood:    "🟢 Great! You're saving money.",
}

// Mood pairs a status with its display text.
type Mood struct {
	Status MoodStatus `json:"status"`
	Text   string     `json:"text"`
}

// ClassifyMood picks the mood for the given totals.
func ClassifyMood(income, expense, threshold float64) Mood {
	var s MoodStatus
	switch {
	case expense > income:
		s = MoodBad
	case math.Abs(income-expense) < threshold:
		s = MoodNeutral
	default:
		s = MoodGood
	}
	return Mood{Status: s, Text: moodTexts[s]}
}

// CategoryAmount is one slice of the expense breakdown.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// MonthlyPoint holds income and expense totals for one calendar month.
type MonthlyPoint struct {
	Label   string    `json:"label"`
	Start   time.Time `json:"start"`
	Income  float64   `json:"income"`
	Expense float64   `json:"expense"`
}

// Report is the aggregate view of a ledger.
type Report struct {
	Count             int                `json:"count"`
	TotalIncome       float64            `json:"total_income"`
	TotalExpense      float64            `json:"total_expense"`
	Balance           float64            `json:"balance"`
	Mood              Mood               `json:"mood"`
	CategoryBreakdown map[string]float64 `json:"category_breakdown"`
	// Categories repeats CategoryBreakdown in first-appearance order.
	Categories    []CategoryAmount `json:"categories"`
	MonthlySeries []MonthlyPoint   `json:"monthly_series"`
}

// Empty reports whether the ledger had no transactions at all.
func (r Report) Empty() bool { return r.Count == 0 }

// HasExpenses reports whether there is anything to break down.
func (r Report) HasExpenses() bool { return len(r.Categories) > 0 }

// ChronologicalSeries returns a copy of the monthly series sorted by month.
func (r Report) ChronologicalSeries() []MonthlyPoint {
	out := make([]MonthlyPoint, len(r.MonthlySeries))
	copy(out, r.MonthlySeries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// AggregateOptions tunes Aggregate.
type AggregateOptions struct {
	MoodThreshold float64
}

// Aggregate computes the report with the default mood threshold.
func Aggregate(txs []Transaction) Report {
	return AggregateWith(txs, AggregateOptions{MoodThreshold: DefaultMoodThreshold})
}

type monthAcc struct {
	label   string
	start   time.Time
	income  decimal.Decimal
	expense decimal.Decimal
}

type categoryAcc struct {
	name  string
	total decimal.Decimal
}

// AggregateWith computes totals, balance, mood, the expense breakdown and
// the monthly series. Only kinds Income and Expense contribute to sums, but
// any row with a parseable date puts its month in the series. Months are
// ordered by label as plain strings ("Feb 2024" before "Jan 2024"); rows
// with unparseable dates are left out of the series but still count in the
// totals.
func AggregateWith(txs []Transaction, opts AggregateOptions) Report {
	income, expense := decimal.Zero, decimal.Zero

	var cats []*categoryAcc
	catIdx := make(map[string]*categoryAcc)

	var months []*monthAcc
	monthIdx := make(map[string]*monthAcc)

	for _, t := range txs {
		var m *monthAcc
		if d, ok := ParseDate(t.Date); ok {
			label := d.Format(MonthLabelLayout)
			if m, ok = monthIdx[label]; !ok {
				m = &monthAcc{label: label, start: MonthStart(d)}
				monthIdx[label] = m
				months = append(months, m)
			}
		}

		if !t.IsIncome() && !t.IsExpense() {
			continue
		}
		// NaN and infinities count as missing, like an empty cell.
		amt := decimal.Zero
		if t.Validate() == nil {
			amt = decimal.NewFromFloat(t.Amount)
		}
		if t.IsIncome() {
			income = income.Add(amt)
			if m != nil {
				m.income = m.income.Add(amt)
			}
			continue
		}
		expense = expense.Add(amt)
		c, ok := catIdx[t.Category]
		if !ok {
			c = &categoryAcc{name: t.Category}
			catIdx[t.Category] = c
			cats = append(cats, c)
		}
		c.total = c.total.Add(amt)
		if m != nil {
			m.expense = m.expense.Add(amt)
		}
	}
	sort.Slice(months, func(i, j int) bool { return months[i].label < months[j].label })

	r := Report{
		Count:             len(txs),
		TotalIncome:       income.InexactFloat64(),
		TotalExpense:      expense.InexactFloat64(),
		Balance:           income.Sub(expense).InexactFloat64(),
		CategoryBreakdown: make(map[string]float64, len(cats)),
		Categories:        make([]CategoryAmount, 0, len(cats)),
		MonthlySeries:     make([]MonthlyPoint, 0, len(months)),
	}
	r.Mood = ClassifyMood(r.TotalIncome, r.TotalExpense, opts.MoodThreshold)

	for _, c := range cats {
		v := c.total.InexactFloat64()
		r.CategoryBreakdown[c.name] = v
		r.Categories = append(r.Categories, CategoryAmount{Name: c.name, Amount: v})
	}
	for _, m := range months {
		r.MonthlySeries = append(r.MonthlySeries, MonthlyPoint{
			Label:   m.label,
			Start:   m.start,
			Income:  m.income.InexactFloat64(),
			Expense: m.expense.InexactFloat64(),
		})
	}
	return r
}
