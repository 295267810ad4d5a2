// Package core holds the domain model of the recurring-schedule ledger.
//
// This file contains parsing helpers for values crossing the command
// boundary: decimal amount strings and day-of-month strings.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a decimal amount string to cents with
// half-up rounding on the third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) separators. The result is
// always positive cents; invalid formats, signs and zero amounts are
// rejected with ErrInvalidAmount.
func ParseDecimalToCents(s string) (int64, error) {
	cents, err := parseUnsignedCents(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if cents == 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseSignedDecimalToCents converts a balance string to cents. Balances
// are signed values (card debt sits below zero) and zero is a valid
// balance, so unlike ParseDecimalToCents this accepts a leading minus
// sign and "0".
func ParseSignedDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}
	cents, err := parseUnsignedCents(s)
	if err != nil {
		return 0, err
	}
	if negative {
		cents = -cents
	}
	return cents, nil
}

func parseUnsignedCents(s string) (int64, error) {
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// First two fractional digits, half-up rounding on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// ParseDayOfMonth parses a day-of-month field as it crosses the command
// boundary (integers 1-31 encoded as strings).
func ParseDayOfMonth(s string) (int, error) {
	day, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, ErrInvalidDay
	}
	if err := ValidateDayOfMonth(day); err != nil {
		return 0, err
	}
	return day, nil
}

// Units returns the major-unit value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}
