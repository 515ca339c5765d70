package sheets

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pilotage/internal/core"
)

// Header is the column layout written by every tabular store.
var Header = []string{"PointDeVente", "Produit", "Semaine", "Annee", "CA"}

type columns struct {
	outlet, product, week, year, revenue int
}

var headerAliases = map[string]string{
	"pointdevente":   "outlet",
	"point de vente": "outlet",
	"outlet":         "outlet",
	"produit":        "product",
	"product":        "product",
	"product_line":   "product",
	"semaine":        "week",
	"week":           "week",
	"annee":          "year",
	"année":          "year",
	"year":           "year",
	"ca":             "revenue",
	"revenue":        "revenue",
}

func mapHeader(header []string) (columns, error) {
	c := columns{-1, -1, -1, -1, -1}
	for i, h := range header {
		switch headerAliases[strings.ToLower(strings.TrimSpace(h))] {
		case "outlet":
			c.outlet = i
		case "product":
			c.product = i
		case "week":
			c.week = i
		case "year":
			c.year = i
		case "revenue":
			c.revenue = i
		}
	}
	var missing []string
	for name, idx := range map[string]int{"PointDeVente": c.outlet, "Produit": c.product, "Semaine": c.week, "Annee": c.year, "CA": c.revenue} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return c, fmt.Errorf("header missing columns %v", missing)
	}
	return c, nil
}

// ParseRows decodes a header row followed by data rows. Columns are matched
// by name, in any order. Blank rows are skipped and malformed rows are
// reported with their 1-based row number.
func ParseRows(rows [][]string) (core.Dataset, error) {
	if len(rows) == 0 {
		return core.Dataset{}, nil
	}
	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}
	ds := make(core.Dataset, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec, err := parseRow(cols, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		ds = append(ds, rec)
	}
	return ds, nil
}

func parseRow(c columns, row []string) (core.SalesRecord, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	week, err := parseInt(cell(c.week))
	if err != nil {
		return core.SalesRecord{}, fmt.Errorf("week: %w", err)
	}
	year, err := parseInt(cell(c.year))
	if err != nil {
		return core.SalesRecord{}, fmt.Errorf("year: %w", err)
	}
	revenue := 0.0
	if v := cell(c.revenue); v != "" {
		if revenue, err = core.ParseRevenue(v); err != nil {
			return core.SalesRecord{}, fmt.Errorf("revenue: %w", err)
		}
	}
	rec := core.SalesRecord{
		Outlet:      cell(c.outlet),
		ProductLine: cell(c.product),
		Week:        week,
		Year:        year,
		Revenue:     revenue,
	}
	if err := rec.Validate(); err != nil {
		return core.SalesRecord{}, err
	}
	return rec, nil
}

// parseInt accepts values a spreadsheet renders for whole numbers, such as
// "12" or "12.0".
func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// EncodeRows renders ds with Header as first row.
func EncodeRows(ds core.Dataset) [][]string {
	out := make([][]string, 0, len(ds)+1)
	out = append(out, append([]string(nil), Header...))
	for _, r := range ds {
		out = append(out, []string{
			r.Outlet,
			r.ProductLine,
			strconv.Itoa(r.Week),
			strconv.Itoa(r.Year),
			strconv.FormatFloat(r.Revenue, 'f', -1, 64),
		})
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
