package google

import (
	"fmt"
	"strconv"
	"strings"

	"pilotage/internal/core"
	ports "pilotage/internal/sheets"
)

// parseValues converts a values matrix (as returned by the Sheets API with
// unformatted values) into a dataset. The first row must be the header.
func parseValues(values [][]interface{}) (core.Dataset, error) {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = toStrings(row)
	}
	return ports.ParseRows(rows)
}

// encodeValues renders the header and ds, keeping numbers numeric so the
// sheet can sum them.
func encodeValues(ds core.Dataset) [][]interface{} {
	out := make([][]interface{}, 0, len(ds)+1)
	header := make([]interface{}, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	out = append(out, header)
	for _, r := range ds {
		out = append(out, []interface{}{r.Outlet, r.ProductLine, r.Week, r.Year, r.Revenue})
	}
	return out
}

// padValues appends blank rows until values spans rows rows.
func padValues(values [][]interface{}, rows int) [][]interface{} {
	for len(values) < rows {
		blank := make([]interface{}, len(ports.Header))
		for i := range blank {
			blank[i] = ""
		}
		values = append(values, blank)
	}
	return values
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}
