package core

import "testing"

func TestParseDate(t *testing.T) {
	cases := []struct {
		in    string
		label string
		ok    bool
	}{
		{"2025-01-10", "Jan 2025", true},
		{"2025/02/03", "Feb 2025", true},
		{"03/15/2025", "Mar 2025", true},
		{"2025-04-01T10:00:00Z", "Apr 2025", true},
		{"2025-05-01 08:30:00", "May 2025", true},
		{"Jun 2, 2025", "Jun 2025", true},
		{"2 Jul 2025", "Jul 2025", true},
		{"", "", false},
		{"yesterday", "", false},
		{"2025-13-01", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.in)
		if ok != tc.ok {
			t.Fatalf("%q: ok=%v, want %v", tc.in, ok, tc.ok)
		}
		if ok && got.Format(MonthLabelLayout) != tc.label {
			t.Fatalf("%q: label %s, want %s", tc.in, got.Format(MonthLabelLayout), tc.label)
		}
	}
}
