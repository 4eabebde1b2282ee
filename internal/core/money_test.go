package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"0", "0.00", true},
		{" 2.50 ", "2.50", true},
		{"99999999.99", "99999999.99", true},
		{"100000000", "", false},
		{"1.005", "", false},
		{"-1", "", false},
		{"1e3", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || FormatAmount(got) != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, FormatAmount(got), err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestCentsRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, 123456, 9999999999} {
		if got := ToCents(FromCents(cents)); got != cents {
			t.Fatalf("round trip %d -> %d", cents, got)
		}
	}
	if got := ToCents(decimal.RequireFromString("12.34")); got != 1234 {
		t.Fatalf("expected 1234, got %d", got)
	}
}

func TestFormatAmount(t *testing.T) {
	if s := FormatAmount(FromCents(1205)); s != "12.05" {
		t.Fatalf("expected 12.05, got %s", s)
	}
	if s := FormatAmount(decimal.Zero); s != "0.00" {
		t.Fatalf("expected 0.00, got %s", s)
	}
}
