package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TerminalMonth is returned for weeks past the last configured bound.
const TerminalMonth = time.December

var monthLabels = [12]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}

type (
	// MonthBound maps every week up to and including UpperWeek (and above
	// the previous bound) to Month.
	MonthBound struct {
		UpperWeek int        `json:"upper_week"`
		Month     time.Month `json:"month"`
	}

	// MonthRule is the ordered week to month mapping of one year.
	MonthRule []MonthBound

	// RuleSet holds the per-year month rules with a fallback for years that
	// have no rule of their own.
	RuleSet struct {
		Default MonthRule
		Years   map[int]MonthRule
	}
)

// Months returns the twelve months in calendar order.
func Months() []time.Month {
	out := make([]time.Month, 12)
	for i := range out {
		out[i] = time.Month(i + 1)
	}
	return out
}

// MonthLabel returns the display label used by the sales sheets.
func MonthLabel(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthLabels[m-1]
}

// MonthOrder returns the calendar position (1-12) of a month label. Both the
// sheet labels and English month names are accepted, case-insensitively.
func MonthOrder(label string) (int, bool) {
	m, ok := ParseMonth(label)
	if !ok {
		return 0, false
	}
	return int(m), true
}

// ParseMonth resolves a month label, an English month name or "1".."12".
func ParseMonth(s string) (time.Month, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for i, l := range monthLabels {
		if strings.EqualFold(l, s) {
			return time.Month(i + 1), true
		}
	}
	for m := time.January; m <= time.December; m++ {
		name := m.String()
		if strings.EqualFold(name, s) || strings.EqualFold(name[:3], s) {
			return m, true
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return time.Month(n), true
	}
	return 0, false
}

// SortByMonthOrder sorts labels chronologically. Unknown labels go last,
// keeping their relative order.
func SortByMonthOrder(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		oi, ok := MonthOrder(labels[i])
		if !ok {
			oi = 13
		}
		oj, ok := MonthOrder(labels[j])
		if !ok {
			oj = 13
		}
		return oi < oj
	})
}

// Validate checks that bounds and months are strictly increasing and that
// bounds stay within the week domain.
func (r MonthRule) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: empty rule", ErrInvalidMonthRuleSet)
	}
	prevWeek, prevMonth := 0, time.Month(0)
	for i, b := range r {
		if b.UpperWeek < MinWeek || b.UpperWeek > MaxWeek {
			return fmt.Errorf("%w: bound %d: week %d outside %d..%d", ErrInvalidMonthRuleSet, i, b.UpperWeek, MinWeek, MaxWeek)
		}
		if b.Month < time.January || b.Month > time.December {
			return fmt.Errorf("%w: bound %d: unknown month %d", ErrInvalidMonthRuleSet, i, b.Month)
		}
		if b.UpperWeek <= prevWeek {
			return fmt.Errorf("%w: bound %d: week %d not above %d", ErrInvalidMonthRuleSet, i, b.UpperWeek, prevWeek)
		}
		if b.Month <= prevMonth {
			return fmt.Errorf("%w: bound %d: %s does not follow %s", ErrInvalidMonthRuleSet, i, b.Month, prevMonth)
		}
		prevWeek, prevMonth = b.UpperWeek, b.Month
	}
	return nil
}

// Resolve returns the month of week under this rule.
func (r MonthRule) Resolve(week int) (time.Month, error) {
	if err := ValidateWeek(week); err != nil {
		return 0, err
	}
	for _, b := range r {
		if week <= b.UpperWeek {
			return b.Month, nil
		}
	}
	return TerminalMonth, nil
}

func (rs RuleSet) Validate() error {
	if err := rs.Default.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	years := make([]int, 0, len(rs.Years))
	for y := range rs.Years {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		if err := rs.Years[y].Validate(); err != nil {
			return fmt.Errorf("year %d: %w", y, err)
		}
	}
	return nil
}

// Rule returns the rule of year, or the default rule.
func (rs RuleSet) Rule(year int) MonthRule {
	if r, ok := rs.Years[year]; ok && len(r) > 0 {
		return r
	}
	return rs.Default
}

// ResolveMonth maps a week of year to its month.
func (rs RuleSet) ResolveMonth(week, year int) (time.Month, error) {
	return rs.Rule(year).Resolve(week)
}
