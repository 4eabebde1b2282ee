package core

import (
	"testing"
	"time"
)

func TestParsePeriodFallsBackIndependently(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		year, month string
		want        Period
	}{
		{"2023", "7", Period{2023, 7}},
		{"", "", Period{2024, 3}},
		{"abc", "7", Period{2024, 7}},
		{"2022", "13", Period{2022, 3}},
		{"2022", "0", Period{2022, 3}},
		{"0", "5", Period{2024, 5}},
		{" 2021 ", " 12 ", Period{2021, 12}},
	}
	for _, tc := range cases {
		if got := ParsePeriod(tc.year, tc.month, now); got != tc.want {
			t.Fatalf("ParsePeriod(%q,%q) = %+v, want %+v", tc.year, tc.month, got, tc.want)
		}
	}
}

func TestPeriodBounds(t *testing.T) {
	p := Period{Year: 2024, Month: 12}
	if p.Start().String() != "2024-12-01" {
		t.Fatalf("unexpected start %s", p.Start())
	}
	if p.End().String() != "2025-01-01" {
		t.Fatalf("unexpected end %s", p.End())
	}
	if !p.Contains(NewDate(2024, 12, 31)) || p.Contains(NewDate(2025, 1, 1)) {
		t.Fatal("contains mismatch at month boundary")
	}
	if prev := (Period{2024, 1}).Previous(); prev != (Period{2023, 12}) {
		t.Fatalf("unexpected previous %+v", prev)
	}
	if p.Label() != "December 2024" || p.Key() != "2024-12" {
		t.Fatalf("unexpected label/key %s %s", p.Label(), p.Key())
	}
}

func TestNewPeriodRejectsInvalid(t *testing.T) {
	if _, err := NewPeriod(2024, 13); err != ErrInvalidPeriod {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := NewPeriod(2024, 1); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
