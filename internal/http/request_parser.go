package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pilotage/internal/core"
)

const maxBodyBytes = 64 << 10

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as strings.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]interface{}
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body of r, up to 64 KiB.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body. Bodies starting with '{' are JSON, anything else
// is treated as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		p.err = fmt.Errorf("%w: read body: %v", errBadRequest, p.err)
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}
	if body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
		}
		return p.err
	}
	p.formData, p.err = url.ParseQuery(body)
	if p.err != nil {
		p.err = fmt.Errorf("%w: invalid form: %v", errBadRequest, p.err)
	}
	return p.err
}

// Get returns the trimmed, sanitized value of key.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON reports whether the body was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters and surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}

// requireInt parses a mandatory integer field.
func requireInt(name, v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", errBadRequest, name, v)
	}
	return n, nil
}

// parseRecord reads outlet, product, week, year and revenue from the body.
// Revenue accepts a comma or a dot as decimal separator.
func parseRecord(p *RequestBodyParser) (core.SalesRecord, error) {
	key, err := parseKey(p)
	if err != nil {
		return core.SalesRecord{}, err
	}
	revenue, err := core.ParseRevenue(p.Get("revenue"))
	if err != nil {
		return core.SalesRecord{}, fmt.Errorf("revenue %q: %w", p.Get("revenue"), err)
	}
	return core.SalesRecord{
		Outlet:      key.Outlet,
		ProductLine: key.ProductLine,
		Week:        key.Week,
		Year:        key.Year,
		Revenue:     revenue,
	}, nil
}

// parseKey reads a record key from the body. Product line is accepted as
// either "product" or "product_line".
func parseKey(p *RequestBodyParser) (core.RecordKey, error) {
	week, err := requireInt("week", p.Get("week"))
	if err != nil {
		return core.RecordKey{}, err
	}
	year, err := requireInt("year", p.Get("year"))
	if err != nil {
		return core.RecordKey{}, err
	}
	product := p.Get("product_line")
	if product == "" {
		product = p.Get("product")
	}
	return core.RecordKey{
		Outlet:      p.Get("outlet"),
		ProductLine: product,
		Week:        week,
		Year:        year,
	}, nil
}

// parseYears reads a comma separated list of years. Blank means none.
func parseYears(v string) ([]int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	years := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid year %q", errBadRequest, part)
		}
		years = append(years, y)
	}
	return years, nil
}

// queryProduct returns the product line query parameter.
func queryProduct(q url.Values) string {
	if v := strings.TrimSpace(q.Get("product")); v != "" {
		return v
	}
	return strings.TrimSpace(q.Get("product_line"))
}
