package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"

	"pilotage/internal/core"
)

// fakeSheets serves the subset of the Sheets v4 values API used by Client.
type fakeSheets struct {
	mu      sync.Mutex
	values  [][]interface{}
	updates []string
	clears  []string
	// failUpdates makes every values update answer 500.
	failUpdates bool
}

// rows omits trailing blank rows, as the API does.
func (f *fakeSheets) rows() [][]interface{} {
	n := len(f.values)
	for n > 0 && blankRow(f.values[n-1]) {
		n--
	}
	return f.values[:n]
}

func blankRow(row []interface{}) bool {
	for _, v := range row {
		if s, ok := v.(string); !ok || s != "" {
			return false
		}
	}
	return true
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		values := f.rows()
		if strings.HasSuffix(rng, "!A:A") {
			values = make([][]interface{}, len(values))
			for i, row := range f.rows() {
				values[i] = row[:1]
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(path[strings.Index(path, "/values/")+len("/values/"):], ":clear")
		f.clears = append(f.clears, rng)
		_ = json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		if f.failUpdates {
			http.Error(w, `{"error":{"code":500,"message":"backend"}}`, http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var vr struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.Unmarshal(body, &vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates = append(f.updates, rng+"?"+r.URL.Query().Get("valueInputOption"))
		// Emulate an in-place overwrite from row 1.
		for i, row := range vr.Values {
			if i < len(f.values) {
				f.values[i] = row
			} else {
				f.values = append(f.values, row)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng, "updatedRows": len(vr.Values)})
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), "sheet-id", "Ventes", nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClientReadAll(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{
		{"PointDeVente", "Produit", "Semaine", "Annee", "CA"},
		{"Halles", "Pascalain", 10, 2024, 100},
		{"Halles", "Pascalain", 10, 2025, 150},
	}}
	c := newTestClient(t, fake)

	ds, err := c.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(ds) != 2 || ds[1].Revenue != 150 || ds[1].Year != 2025 {
		t.Fatalf("unexpected dataset %v", ds)
	}
}

func TestClientWriteAllBlanksTrailingRows(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{
		{"PointDeVente", "Produit", "Semaine", "Annee", "CA"},
		{"Halles", "Pascalain", 1, 2025, 1},
		{"Halles", "Pascalain", 2, 2025, 2},
		{"Halles", "Pascalain", 3, 2025, 3},
	}}
	c := newTestClient(t, fake)

	ds := core.Dataset{{Outlet: "Gare", ProductLine: "Pascalain", Week: 7, Year: 2025, Revenue: 70}}
	if err := c.WriteAll(context.Background(), ds); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	if len(fake.updates) != 1 || fake.updates[0] != "Ventes!A1:E4?RAW" {
		t.Fatalf("unexpected updates %v", fake.updates)
	}
	if len(fake.clears) != 0 {
		t.Fatalf("unexpected clears %v", fake.clears)
	}
	got, err := c.ReadAll(context.Background())
	if err != nil || len(got) != 1 || got[0].Outlet != "Gare" {
		t.Fatalf("read back %v %v", got, err)
	}
}

func TestClientWriteAllFailureLeavesSheetUnchanged(t *testing.T) {
	fake := &fakeSheets{
		values: [][]interface{}{
			{"PointDeVente", "Produit", "Semaine", "Annee", "CA"},
			{"A", "Pascalain", 1, 2025, 10},
			{"B", "Pascalain", 1, 2025, 20},
			{"C", "Pascalain", 1, 2025, 30},
		},
		failUpdates: true,
	}
	c := newTestClient(t, fake)
	ctx := context.Background()

	before, err := c.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	next, err := before.DeleteAt(0)
	if err != nil {
		t.Fatalf("DeleteAt: %v", err)
	}
	if err := c.WriteAll(ctx, next); err == nil {
		t.Fatalf("expected write error")
	}

	fake.mu.Lock()
	fake.failUpdates = false
	fake.mu.Unlock()
	after, err := c.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(after) != 3 || after[0].Outlet != "A" || after[2].Outlet != "C" {
		t.Fatalf("sheet changed by a failed write: %v", after)
	}
}

func TestClientWriteAllGrowingDatasetDoesNotClear(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{{"PointDeVente", "Produit", "Semaine", "Annee", "CA"}}}
	c := newTestClient(t, fake)

	ds := core.Dataset{
		{Outlet: "Gare", ProductLine: "Pascalain", Week: 7, Year: 2025, Revenue: 70},
		{Outlet: "Gare", ProductLine: "Pascalain", Week: 8, Year: 2025, Revenue: 80},
	}
	if err := c.WriteAll(context.Background(), ds); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(fake.clears) != 0 {
		t.Fatalf("unexpected clears %v", fake.clears)
	}
	got, err := c.ReadAll(context.Background())
	if err != nil || len(got) != 2 || got[1].Week != 8 {
		t.Fatalf("read back %v %v", got, err)
	}
}

func TestClientReadAllServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"backend"}}`, http.StatusServiceUnavailable)
	}))
	if _, err := c.ReadAll(context.Background()); err == nil {
		t.Fatalf("expected error from unavailable sheet")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(context.Background(), " ", "Ventes", nil, goption.WithoutAuthentication()); err == nil {
		t.Fatalf("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), "id", "", nil, goption.WithoutAuthentication()); err == nil {
		t.Fatalf("expected error for missing sheet name")
	}
	if _, err := NewFromSettings(context.Background(), Settings{SpreadsheetID: "id", SheetName: "Ventes"}, nil); err == nil ||
		!strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}
