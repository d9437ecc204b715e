// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer minor units (cents). Parsing and formatting go
// through shopspring/decimal so that no float ever touches a stored value.
package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents is the largest amount an expense may carry: 12 digits of
// precision with 2 of them after the decimal point.
const MaxCents int64 = 999_999_999_999

// Money is a positive amount in minor units.
type Money struct {
	Cents int64
}

// ParseAmount converts a decimal string to Money.
//
// The value must be positive, have at most two fractional digits and fit in
// MaxCents. Unlike display formatting it never rounds: "12.345" is rejected
// rather than silently truncated.
//
// Examples:
//
//	ParseAmount("12.34") -> Money{1234}, nil
//	ParseAmount("75000") -> Money{7500000}, nil
//	ParseAmount("12.345") -> error
//	ParseAmount("-1") -> error
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal validates d and converts it to cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if !d.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(2)) {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Shift(2)
	if cents.GreaterThan(decimal.NewFromInt(MaxCents)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with exactly two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns the sum of m and o. Sums are not bounded by MaxCents.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string. Range checks are
// left to Validate so that a zero amount surfaces as a field error.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Money{}
		return nil
	}
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(2)) {
		return ErrInvalidAmount
	}
	cents := d.Shift(2)
	if cents.Abs().GreaterThan(decimal.NewFromInt(MaxCents)) {
		return ErrInvalidAmount
	}
	*m = Money{Cents: cents.IntPart()}
	return nil
}
