package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func sample() Dataset {
	return Dataset{
		{Outlet: "Halles", ProductLine: "Pascalain", Week: 10, Year: 2024, Revenue: 100},
		{Outlet: "Halles", ProductLine: "Pascalain", Week: 10, Year: 2025, Revenue: 150},
		{Outlet: "Halles", ProductLine: "Tripes & Cie", Week: 2, Year: 2025, Revenue: 40},
		{Outlet: "Gare", ProductLine: "Pascalain", Week: 2, Year: 2025, Revenue: 75},
		{Outlet: "Halles", ProductLine: "Pascalain", Week: 1, Year: 2025, Revenue: 20},
		{Outlet: "Halles", ProductLine: "Pascalain", Week: 1, Year: 2025, Revenue: 5},
		{Outlet: "Halles", ProductLine: "Pascalain", Week: 52, Year: 2024, Revenue: 30},
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	got := Filter(sample(), "Halles", "Pascalain")
	if len(got) != 5 {
		t.Fatalf("expected 5 records, got %d", len(got))
	}
	wantWeeks := []int{10, 10, 1, 1, 52}
	for i, w := range wantWeeks {
		if got[i].Week != w {
			t.Fatalf("record %d: expected week %d, got %d", i, w, got[i].Week)
		}
	}
	if got := Filter(nil, "Halles", "Pascalain"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
	if got := Filter(sample(), "Nowhere", "Pascalain"); len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestAggregateMonthlyDenseAndSummed(t *testing.T) {
	records := Filter(sample(), "Halles", "Pascalain")
	table, err := AggregateMonthly(records, []int{2025, 2024, 2025}, testRules())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(table.Rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(table.Rows))
	}
	if len(table.Years) != 2 || table.Years[0] != 2024 || table.Years[1] != 2025 {
		t.Fatalf("unexpected years %v", table.Years)
	}
	for i, r := range table.Rows {
		if r.Month != time.Month(i+1) {
			t.Fatalf("row %d: expected %s, got %s", i, time.Month(i+1), r.Month)
		}
	}
	// Duplicates for week 1 / 2025 are summed.
	if got := table.Value(0, 2025); got != 25 {
		t.Fatalf("January 2025: expected 25, got %v", got)
	}
	if got := table.Value(2, 2024); got != 100 {
		t.Fatalf("March 2024: expected 100, got %v", got)
	}
	if got := table.Value(11, 2024); got != 30 {
		t.Fatalf("December 2024: expected 30, got %v", got)
	}
	if table.Total() != records.TotalRevenue() {
		t.Fatalf("table total %v != input total %v", table.Total(), records.TotalRevenue())
	}
	if table.Comparison != nil || table.Rows[0].Change != nil {
		t.Fatalf("aggregation alone must not add comparison columns")
	}
}

func TestAggregateMonthlyIgnoresOtherYears(t *testing.T) {
	table, err := AggregateMonthly(sample(), []int{2024}, testRules())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if table.Total() != 130 {
		t.Fatalf("expected only 2024 revenue (130), got %v", table.Total())
	}
}

func TestAggregateMonthlyInvalidWeek(t *testing.T) {
	records := Dataset{{Outlet: "A", ProductLine: "P", Week: 60, Year: 2024, Revenue: 1}}
	if _, err := AggregateMonthly(records, []int{2024}, testRules()); !errors.Is(err, ErrInvalidWeek) {
		t.Fatalf("expected ErrInvalidWeek, got %v", err)
	}
}

func TestSummarizeEmptyDataset(t *testing.T) {
	table, err := Summarize(Dataset{}, SummaryQuery{Outlet: "Halles", ProductLine: "Pascalain", Years: []int{2024, 2025}}, testRules())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(table.Rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(table.Rows))
	}
	if table.Comparison == nil || table.Comparison.Current != 2025 || table.Comparison.Baseline != 2024 {
		t.Fatalf("unexpected comparison %+v", table.Comparison)
	}
	for _, r := range table.Rows {
		for _, v := range r.Values {
			if v != 0 {
				t.Fatalf("%s: expected zero cells, got %v", r.Label, r.Values)
			}
		}
		if r.Change == nil || r.Change.Delta != 0 || r.Change.PercentChange != 0 {
			t.Fatalf("%s: expected zero change, got %+v", r.Label, r.Change)
		}
	}
}

func TestSummarizeSingleYearHasNoComparison(t *testing.T) {
	table, err := Summarize(sample(), SummaryQuery{Outlet: "Halles", ProductLine: "Pascalain", Years: []int{2025}}, testRules())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if table.Comparison != nil {
		t.Fatalf("expected no comparison with a single year")
	}
}

func TestCompare(t *testing.T) {
	table, err := AggregateMonthly(Filter(sample(), "Halles", "Pascalain"), []int{2024, 2025}, testRules())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	cmp := Compare(table, 2025, 2024)
	march := cmp.Rows[2].Change
	if march.Delta != 50 || march.PercentChange != 50 {
		t.Fatalf("March: expected +50 / 50%%, got %+v", march)
	}
	jan := cmp.Rows[0].Change
	if jan.Delta != 25 || jan.PercentChange != 0 {
		t.Fatalf("January with zero baseline: expected 25 / 0, got %+v", jan)
	}
	dec := cmp.Rows[11].Change
	if dec.Delta != -30 || dec.PercentChange != -100 {
		t.Fatalf("December: expected -30 / -100, got %+v", dec)
	}
	// The input table is left untouched.
	if table.Comparison != nil || table.Rows[2].Change != nil {
		t.Fatalf("Compare mutated its input")
	}
	// A year absent from the table counts as zero.
	missing := Compare(table, 2026, 2025)
	if got := missing.Rows[2].Change; got.Delta != -150 || got.PercentChange != -100 {
		t.Fatalf("missing current year: got %+v", got)
	}
}

func TestMonthlyTableCloneIsDeep(t *testing.T) {
	table, err := Summarize(sample(), SummaryQuery{Outlet: "Halles", ProductLine: "Pascalain", Years: []int{2024, 2025}}, testRules())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	c := table.Clone()
	c.Years[0] = 1999
	c.Rows[2].Values[0] = -1
	c.Rows[2].Change.Delta = -1
	c.Comparison.Current = 1999

	if table.Years[0] != 2024 || table.Rows[2].Values[0] == -1 || table.Rows[2].Change.Delta == -1 || table.Comparison.Current != 2025 {
		t.Fatalf("Clone shares state with the original: %+v", table)
	}
}

func TestNewChangeZeroGuard(t *testing.T) {
	cases := []struct {
		cur, base      float64
		delta, percent float64
	}{
		{0, 0, 0, 0},
		{10, 0, 10, 0},
		{150, 100, 50, 50},
		{50, 100, -50, -50},
		{math.MaxFloat64, -math.MaxFloat64, 0, 0},
		{math.NaN(), 1, 0, 0},
	}
	for i, tc := range cases {
		got := NewChange(tc.cur, tc.base)
		if got.Delta != tc.delta || got.PercentChange != tc.percent {
			t.Fatalf("case %d: expected %v/%v, got %+v", i, tc.delta, tc.percent, got)
		}
	}
}

func TestComputeKPI(t *testing.T) {
	records := Dataset{
		{Outlet: "Halles", ProductLine: "Pascalain", Week: 10, Year: 2024, Revenue: 100},
		{Outlet: "Halles", ProductLine: "Pascalain", Week: 10, Year: 2025, Revenue: 150},
	}
	k, err := ComputeKPI(records, 10, 2025, 2024)
	if err != nil {
		t.Fatalf("kpi: %v", err)
	}
	if k.Current != 150 || k.Baseline != 100 || k.Delta != 50 || k.PercentChange != 50.0 {
		t.Fatalf("unexpected kpi %+v", k)
	}

	k, err = ComputeKPI(records, 11, 2025, 2024)
	if err != nil {
		t.Fatalf("kpi: %v", err)
	}
	if k.Current != 0 || k.Baseline != 0 || k.PercentChange != 0 {
		t.Fatalf("expected empty kpi, got %+v", k)
	}

	k, _ = ComputeKPI(records, 10, 2025, 2023)
	if k.Baseline != 0 || k.Delta != 150 || k.PercentChange != 0 {
		t.Fatalf("zero baseline: got %+v", k)
	}

	if _, err := ComputeKPI(records, 54, 2025, 2024); !errors.Is(err, ErrInvalidWeek) {
		t.Fatalf("expected ErrInvalidWeek, got %v", err)
	}
}
