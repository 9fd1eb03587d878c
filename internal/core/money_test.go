package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"12.34", 12.34, true},
		{" 200 ", 200, true},
		{"-5", -5, true},
		{"0", 0, true},
		{"1e3", 1000, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"1,23", 0, false},
		{"1.2.3", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-Inf", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
			}
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[float64]string{
		200:     "200",
		12.5:    "12.5",
		0.1:     "0.1",
		-3.25:   "-3.25",
		1000000: "1000000",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestLenientAmount(t *testing.T) {
	if v, ok := LenientAmount("42.5"); !ok || v != 42.5 {
		t.Fatalf("expected 42.5, got %v ok=%v", v, ok)
	}
	if v, ok := LenientAmount("n/a"); ok || v != 0 {
		t.Fatalf("expected 0,false got %v ok=%v", v, ok)
	}
}
