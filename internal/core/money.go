// Package core provides the loan domain model and money handling utilities.
//
// Monetary amounts are held as integer cents and converted to exact decimal
// strings at the API boundary. Binary floating point is never used for money.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("12.344") -> 1234, nil (rounds down)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")

	if strings.Count(s, ".") > 1 {
		return 0, ErrInvalidAmount
	}
	// Amounts are always positive, a sign is rejected outright.
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return 0, ErrInvalidAmount
		}
	}

	intPart := s
	fracPart := ""
	if i := strings.Index(s, "."); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	// Normalize fraction to three digits so we can round half-up on the third.
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	fracPart = fracPart[:3]
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	cents := whole*100 + frac/10
	if frac%10 >= 5 {
		cents++
	}

	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseRatePercent parses an annual interest rate like "5.5" into an exact decimal.
// Negative rates are rejected.
func ParseRatePercent(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Decimal{}, ErrInvalidRate
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidRate
	}
	if d.IsNegative() {
		return decimal.Decimal{}, ErrInvalidRate
	}
	return d, nil
}

// Decimal returns the amount as an exact decimal (cents shifted two places).
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount as a plain decimal string with two fraction
// digits, e.g. 1234 cents -> "12.34". Suitable for JSON serialization.
func (m Money) String() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "." + pad2(cents%100)
	if neg {
		return "-" + s
	}
	return s
}

// MoneyFromDecimal converts an exact decimal amount to Money, rounding to
// cents half-up (ties away from zero).
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
