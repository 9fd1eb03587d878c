// Package core holds the transaction model and the aggregation that turns a
// ledger into totals, mood and chart series.
//
// This file contains amount parsing and formatting.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts user input into an amount.
//
// Surrounding whitespace is ignored. Any finite number is accepted,
// including zero and negatives. Empty input, garbage, NaN and infinities
// fail with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.5")  -> 12.5, nil
//	ParseAmount(" 200 ") -> 200, nil
//	ParseAmount("1e3")   -> 1000, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// FormatAmount renders an amount with the fewest digits that parse back to
// the same value.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LenientAmount is used when reading stored rows: unparseable values become
// zero and ok is false.
func LenientAmount(s string) (v float64, ok bool) {
	v, err := ParseAmount(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
