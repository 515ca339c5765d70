package core

import (
	"fmt"
	"sort"
	"strings"
)

// OutletDefaults describes the placeholder row appended for a new outlet.
type OutletDefaults struct {
	ProductLine string
	Year        int
}

// Clone returns an independent copy of the dataset.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return Dataset{}
	}
	out := make(Dataset, len(d))
	copy(out, d)
	return out
}

// Append returns a new dataset with r added at the end. Duplicated periods
// are allowed.
func (d Dataset) Append(r SalesRecord) (Dataset, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	out := make(Dataset, len(d), len(d)+1)
	copy(out, d)
	return append(out, r), nil
}

// DeleteAt returns a new dataset without the record at pos.
func (d Dataset) DeleteAt(pos int) (Dataset, error) {
	if pos < 0 || pos >= len(d) {
		return nil, fmt.Errorf("%w: %d (dataset has %d rows)", ErrPositionOutOfRange, pos, len(d))
	}
	out := make(Dataset, 0, len(d)-1)
	out = append(out, d[:pos]...)
	return append(out, d[pos+1:]...), nil
}

// DeleteLast removes the last record.
func (d Dataset) DeleteLast() (Dataset, error) {
	return d.DeleteAt(len(d) - 1)
}

// DeleteMatching returns a new dataset without the records of key, and the
// number of records removed.
func (d Dataset) DeleteMatching(key RecordKey) (Dataset, int) {
	out := make(Dataset, 0, len(d))
	for _, r := range d {
		if r.Key() == key {
			continue
		}
		out = append(out, r)
	}
	return out, len(d) - len(out)
}

// HasOutlet reports whether any record belongs to outlet.
func (d Dataset) HasOutlet(outlet string) bool {
	for _, r := range d {
		if r.Outlet == outlet {
			return true
		}
	}
	return false
}

// InitializeOutlet appends a zero-revenue placeholder at week 1 so that a
// new outlet shows up in the outlet list.
func (d Dataset) InitializeOutlet(name string, defaults OutletDefaults) (Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyOutlet
	}
	if d.HasOutlet(name) {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateOutlet, name)
	}
	return d.Append(SalesRecord{
		Outlet:      name,
		ProductLine: defaults.ProductLine,
		Week:        MinWeek,
		Year:        defaults.Year,
		Revenue:     0,
	})
}

// Outlets returns the distinct outlets, sorted.
func (d Dataset) Outlets() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, r := range d {
		if _, ok := seen[r.Outlet]; ok {
			continue
		}
		seen[r.Outlet] = struct{}{}
		out = append(out, r.Outlet)
	}
	sort.Strings(out)
	return out
}

// Years returns the distinct years present, ascending.
func (d Dataset) Years() []int {
	years := make([]int, 0, len(d))
	for _, r := range d {
		years = append(years, r.Year)
	}
	return NormalizeYears(years)
}

// TotalRevenue sums the revenue of every record.
func (d Dataset) TotalRevenue() float64 {
	var sum float64
	for _, r := range d {
		sum += r.Revenue
	}
	return sum
}
