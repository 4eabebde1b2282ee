// Package core provides money parsing and handling utilities.
//
// Amounts are decimals with at most two fractional digits. Storage keeps them
// as integer cents so that sums stay exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount accepted (10 digits, 2 of them fractional).
var MaxAmount = decimal.RequireFromString("99999999.99")

// ParseAmount converts a user supplied decimal string into an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Negative
// values, more than two fractional digits and values above MaxAmount are
// rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,3")  -> 12.30, nil
//	ParseAmount("0")     -> 0.00, nil
//	ParseAmount("1.005") -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE+-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount checks sign, precision and range.
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(2)) {
		return ErrInvalidAmount
	}
	if d.GreaterThan(MaxAmount) {
		return ErrInvalidAmount
	}
	return nil
}

// ToCents converts an amount to integer cents.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents converts integer cents to an amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatAmount renders an amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
