// Package core provides the sales records, the week to month rules and the
// aggregation engine of the revenue dashboard.
//
// This file contains the parsing of revenue amounts typed by users or
// stored in spreadsheet cells.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseRevenue converts a decimal string to a revenue amount rounded to the
// cent.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted, with
// half-up rounding on the third decimal place. Spaces used as thousands
// separators are ignored. Zero is valid; negative values are not.
//
// Examples:
//
//	ParseRevenue("12.34")    -> 12.34, nil
//	ParseRevenue("12,345")   -> 12.35, nil
//	ParseRevenue("1 250,5")  -> 1250.5, nil
//	ParseRevenue("-1")       -> 0, ErrInvalidRevenue
func ParseRevenue(s string) (float64, error) {
	cents, err := ParseRevenueCents(s)
	if err != nil {
		return 0, err
	}
	return float64(cents) / 100.0, nil
}

// ParseRevenueCents is ParseRevenue expressed in integer cents.
func ParseRevenueCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\u202f' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSuffix(s, "€")
	if s == "" {
		return 0, ErrInvalidRevenue
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidRevenue
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidRevenue
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return 0, ErrInvalidRevenue
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidRevenue
	}
	const maxSafeInt64 = (math.MaxInt64 - 100) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidRevenue
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// RoundCents rounds a revenue amount to the nearest cent.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
