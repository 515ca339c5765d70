package core

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type (
	// Change holds the derived year-over-year columns of a row.
	Change struct {
		Delta         float64 `json:"delta"`
		PercentChange float64 `json:"percent_change"`
	}

	// MonthlyRow is one calendar month of a MonthlyTable. Values is aligned
	// with MonthlyTable.Years.
	MonthlyRow struct {
		Month  time.Month `json:"month"`
		Label  string     `json:"label"`
		Values []float64  `json:"values"`
		Change *Change    `json:"change,omitempty"`
	}

	// Comparison names the years compared in a MonthlyTable.
	Comparison struct {
		Current  int `json:"current"`
		Baseline int `json:"baseline"`
	}

	// MonthlyTable is the dense month by year revenue summary: always twelve
	// rows in calendar order, one value per requested year.
	MonthlyTable struct {
		Years      []int        `json:"years"`
		Rows       []MonthlyRow `json:"rows"`
		Comparison *Comparison  `json:"comparison,omitempty"`
	}

	// KPI is the single-week year-over-year indicator.
	KPI struct {
		Week          int     `json:"week"`
		CurrentYear   int     `json:"current_year"`
		BaselineYear  int     `json:"baseline_year"`
		Current       float64 `json:"current"`
		Baseline      float64 `json:"baseline"`
		Delta         float64 `json:"delta"`
		PercentChange float64 `json:"percent_change"`
	}

	// SummaryQuery selects the records and years of a summary.
	SummaryQuery struct {
		Outlet      string
		ProductLine string
		Years       []int
	}
)

// Filter returns the records of outlet and productLine, preserving order.
func Filter(records Dataset, outlet, productLine string) Dataset {
	out := make(Dataset, 0)
	for _, r := range records {
		if r.Outlet == outlet && r.ProductLine == productLine {
			out = append(out, r)
		}
	}
	return out
}

// NormalizeYears returns the distinct years in ascending order.
func NormalizeYears(years []int) []int {
	seen := make(map[int]struct{}, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// AggregateMonthly sums revenue per (month, year). Records of years outside
// years are ignored. Duplicate periods add up.
func AggregateMonthly(records Dataset, years []int, rules RuleSet) (MonthlyTable, error) {
	years = NormalizeYears(years)
	col := make(map[int]int, len(years))
	for i, y := range years {
		col[y] = i
	}

	table := MonthlyTable{Years: years, Rows: make([]MonthlyRow, 12)}
	for i, m := range Months() {
		table.Rows[i] = MonthlyRow{Month: m, Label: MonthLabel(m), Values: make([]float64, len(years))}
	}

	for i, r := range records {
		c, ok := col[r.Year]
		if !ok {
			continue
		}
		m, err := rules.ResolveMonth(r.Week, r.Year)
		if err != nil {
			return MonthlyTable{}, fmt.Errorf("record %d: %w", i, err)
		}
		table.Rows[m-1].Values[c] += r.Revenue
	}
	return table, nil
}

// Value returns the value of year in the row, 0 when the year is absent.
func (t MonthlyTable) Value(row int, year int) float64 {
	for i, y := range t.Years {
		if y == year {
			return t.Rows[row].Values[i]
		}
	}
	return 0
}

// Clone returns a deep copy of t.
func (t MonthlyTable) Clone() MonthlyTable {
	out := MonthlyTable{Years: append([]int(nil), t.Years...)}
	if t.Rows != nil {
		out.Rows = make([]MonthlyRow, len(t.Rows))
		for i, r := range t.Rows {
			r.Values = append([]float64(nil), r.Values...)
			if r.Change != nil {
				ch := *r.Change
				r.Change = &ch
			}
			out.Rows[i] = r
		}
	}
	if t.Comparison != nil {
		c := *t.Comparison
		out.Comparison = &c
	}
	return out
}

// Total sums every cell of the table.
func (t MonthlyTable) Total() float64 {
	var sum float64
	for _, r := range t.Rows {
		for _, v := range r.Values {
			sum += v
		}
	}
	return sum
}

// Compare returns a copy of table with the delta and percent change of
// current against baseline on every row. A year missing from the table
// counts as zero.
func Compare(table MonthlyTable, current, baseline int) MonthlyTable {
	out := MonthlyTable{
		Years:      append([]int(nil), table.Years...),
		Rows:       make([]MonthlyRow, len(table.Rows)),
		Comparison: &Comparison{Current: current, Baseline: baseline},
	}
	for i, r := range table.Rows {
		ch := NewChange(table.Value(i, current), table.Value(i, baseline))
		out.Rows[i] = MonthlyRow{
			Month:  r.Month,
			Label:  r.Label,
			Values: append([]float64(nil), r.Values...),
			Change: &ch,
		}
	}
	return out
}

// NewChange computes current minus baseline and the percent change. The
// percent change is 0 when baseline is 0, and any non-finite result is 0.
func NewChange(current, baseline float64) Change {
	delta := current - baseline
	if !finite(delta) {
		return Change{}
	}
	if baseline == 0 {
		return Change{Delta: delta}
	}
	pct := delta / baseline * 100
	if !finite(pct) {
		pct = 0
	}
	return Change{Delta: delta, PercentChange: pct}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ComputeKPI sums revenue of week for both years and compares them.
func ComputeKPI(records Dataset, week, current, baseline int) (KPI, error) {
	if err := ValidateWeek(week); err != nil {
		return KPI{}, err
	}
	k := KPI{Week: week, CurrentYear: current, BaselineYear: baseline}
	for _, r := range records {
		if r.Week != week {
			continue
		}
		switch r.Year {
		case current:
			k.Current += r.Revenue
		case baseline:
			k.Baseline += r.Revenue
		}
	}
	ch := NewChange(k.Current, k.Baseline)
	k.Delta, k.PercentChange = ch.Delta, ch.PercentChange
	return k, nil
}

// Summarize runs filter, monthly aggregation and, with at least two years,
// the comparison of the latest year against the one before it.
func Summarize(records Dataset, q SummaryQuery, rules RuleSet) (MonthlyTable, error) {
	table, err := AggregateMonthly(Filter(records, q.Outlet, q.ProductLine), q.Years, rules)
	if err != nil {
		return MonthlyTable{}, err
	}
	if n := len(table.Years); n >= 2 {
		table = Compare(table, table.Years[n-1], table.Years[n-2])
	}
	return table, nil
}
