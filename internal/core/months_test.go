package core

import (
	"errors"
	"testing"
	"time"
)

func rule2024() MonthRule {
	return MonthRule{
		{5, time.January}, {9, time.February}, {13, time.March}, {17, time.April},
		{21, time.May}, {26, time.June}, {30, time.July}, {35, time.August},
		{39, time.September}, {44, time.October}, {48, time.November},
	}
}

func testRules() RuleSet {
	r2025 := rule2024()
	r2025[3].UpperWeek = 18
	return RuleSet{Default: rule2024(), Years: map[int]MonthRule{2025: r2025}}
}

func TestResolveMonthBoundaries(t *testing.T) {
	rs := testRules()
	cases := []struct {
		week, year int
		want       time.Month
	}{
		{1, 2024, time.January},
		{5, 2024, time.January},
		{6, 2024, time.February},
		{17, 2024, time.April},
		{18, 2024, time.May},
		{18, 2025, time.April},
		{19, 2025, time.May},
		{48, 2024, time.November},
		{49, 2024, time.December},
		{53, 2024, time.December},
		{18, 2031, time.May}, // unknown year uses the default rule
	}
	for _, tc := range cases {
		got, err := rs.ResolveMonth(tc.week, tc.year)
		if err != nil {
			t.Fatalf("week %d/%d: unexpected error %v", tc.week, tc.year, err)
		}
		if got != tc.want {
			t.Fatalf("week %d/%d: expected %s, got %s", tc.week, tc.year, tc.want, got)
		}
	}
}

func TestResolveMonthInvalidWeek(t *testing.T) {
	rs := testRules()
	for _, w := range []int{0, 54, -1} {
		if _, err := rs.ResolveMonth(w, 2024); !errors.Is(err, ErrInvalidWeek) {
			t.Fatalf("week %d: expected ErrInvalidWeek, got %v", w, err)
		}
	}
}

func TestResolveMonthMonotonic(t *testing.T) {
	rs := testRules()
	for _, year := range []int{2024, 2025, 2026} {
		prev := time.Month(0)
		for w := MinWeek; w <= MaxWeek; w++ {
			m, err := rs.ResolveMonth(w, year)
			if err != nil {
				t.Fatalf("week %d: %v", w, err)
			}
			if m < time.January || m > time.December {
				t.Fatalf("week %d: month %d out of range", w, m)
			}
			if m < prev {
				t.Fatalf("year %d: month regressed at week %d (%s after %s)", year, w, m, prev)
			}
			prev = m
		}
	}
}

func TestRuleValidate(t *testing.T) {
	if err := rule2024().Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
	bads := []MonthRule{
		nil,
		{{0, time.January}},
		{{54, time.January}},
		{{5, time.January}, {5, time.February}},
		{{5, time.February}, {9, time.January}},
		{{5, time.Month(13)}},
	}
	for i, r := range bads {
		if err := r.Validate(); !errors.Is(err, ErrInvalidMonthRuleSet) {
			t.Fatalf("case %d expected ErrInvalidMonthRuleSet, got %v", i, err)
		}
	}

	rs := RuleSet{Default: rule2024(), Years: map[int]MonthRule{2026: {{9, time.March}, {4, time.April}}}}
	if err := rs.Validate(); err == nil {
		t.Fatalf("expected invalid year rule to fail the set")
	}
}

func TestMonthLabelsAndOrder(t *testing.T) {
	if MonthLabel(time.February) != "Février" || MonthLabel(time.December) != "Décembre" {
		t.Fatalf("unexpected labels")
	}
	if MonthLabel(0) != "" {
		t.Fatalf("expected empty label for invalid month")
	}
	for _, in := range []string{"Août", "août", "August", "aug", "8"} {
		if o, ok := MonthOrder(in); !ok || o != 8 {
			t.Fatalf("%q: expected 8, got %d (%v)", in, o, ok)
		}
	}
	if _, ok := MonthOrder("Brumaire"); ok {
		t.Fatalf("unknown label should not resolve")
	}

	labels := []string{"Mars", "x", "Janvier", "Décembre", "Février"}
	SortByMonthOrder(labels)
	want := []string{"Janvier", "Février", "Mars", "Décembre", "x"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("sorted labels = %v, want %v", labels, want)
		}
	}
}
