package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Week numbers are ISO-like, 1 to 53 inclusive.
const (
	MinWeek = 1
	MaxWeek = 53
)

type (
	// SalesRecord is one revenue observation for an outlet, a product line
	// and a (week, year) period.
	SalesRecord struct {
		Outlet      string  `json:"outlet"`
		ProductLine string  `json:"product_line"`
		Week        int     `json:"week"`
		Year        int     `json:"year"`
		Revenue     float64 `json:"revenue"`
	}

	// RecordKey identifies a revenue period for one outlet and product line.
	// Several records may share the same key.
	RecordKey struct {
		Outlet      string `json:"outlet"`
		ProductLine string `json:"product_line"`
		Week        int    `json:"week"`
		Year        int    `json:"year"`
	}

	// Dataset is the full collection persisted by a store. Order is not
	// meaningful but stays stable so positions can be used for deletion.
	Dataset []SalesRecord
)

var (
	ErrInvalidWeek         = errors.New("invalid week")
	ErrInvalidYear         = errors.New("invalid year")
	ErrInvalidRevenue      = errors.New("invalid revenue")
	ErrEmptyOutlet         = errors.New("empty outlet")
	ErrEmptyProductLine    = errors.New("empty product line")
	ErrPositionOutOfRange  = errors.New("position out of range")
	ErrDuplicateOutlet     = errors.New("duplicate outlet")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrVersionConflict     = errors.New("dataset version conflict")
	ErrInvalidMonthRuleSet = errors.New("invalid month rule set")
)

// StoreError reports a failed read or write against the backing store.
// It matches both ErrStoreUnavailable and the underlying cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// ValidateWeek fails with ErrInvalidWeek outside 1..53.
func ValidateWeek(week int) error {
	if week < MinWeek || week > MaxWeek {
		return fmt.Errorf("%w: %d (must be between %d and %d)", ErrInvalidWeek, week, MinWeek, MaxWeek)
	}
	return nil
}

func (r SalesRecord) Validate() error {
	if strings.TrimSpace(r.Outlet) == "" {
		return ErrEmptyOutlet
	}
	if strings.TrimSpace(r.ProductLine) == "" {
		return ErrEmptyProductLine
	}
	if err := ValidateWeek(r.Week); err != nil {
		return err
	}
	if r.Year < 1900 || r.Year > 9999 {
		return fmt.Errorf("%w: %d", ErrInvalidYear, r.Year)
	}
	if r.Revenue < 0 || math.IsNaN(r.Revenue) || math.IsInf(r.Revenue, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRevenue, r.Revenue)
	}
	return nil
}

// Key returns the revenue period key of the record.
func (r SalesRecord) Key() RecordKey {
	return RecordKey{Outlet: r.Outlet, ProductLine: r.ProductLine, Week: r.Week, Year: r.Year}
}
