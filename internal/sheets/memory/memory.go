package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pilotage/internal/core"
	"pilotage/internal/sheets"
)

// SeedFile is the CSV read by NewFromFiles, relative to the data directory.
const SeedFile = "seed_sales.csv"

// Store keeps the dataset in process memory. It is the development backend
// and the fake used by service tests.
type Store struct {
	mu      sync.Mutex
	rows    core.Dataset
	version int64
}

var _ sheets.VersionedStore = (*Store)(nil)

func New(seed core.Dataset) *Store {
	return &Store{rows: seed.Clone(), version: 1}
}

// NewFromFiles seeds the store from <base>/seed_sales.csv. A missing file
// yields an empty store; a malformed one is an error.
func NewFromFiles(base string) (*Store, error) {
	ds, err := readSeed(filepath.Join(base, SeedFile))
	if err != nil {
		return nil, err
	}
	return New(ds), nil
}

func (s *Store) ReadAll(ctx context.Context) (core.Dataset, error) {
	ds, _, err := s.ReadVersioned(ctx)
	return ds, err
}

func (s *Store) ReadVersioned(ctx context.Context) (core.Dataset, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows.Clone(), s.version, nil
}

func (s *Store) WriteAll(ctx context.Context, ds core.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = ds.Clone()
	s.version++
	return nil
}

func (s *Store) WriteAllIfVersion(ctx context.Context, ds core.Dataset, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return fmt.Errorf("%w: have %d, expected %d", core.ErrVersionConflict, s.version, version)
	}
	s.rows = ds.Clone()
	s.version++
	return nil
}

// Version returns the current version token.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func readSeed(path string) (core.Dataset, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	ds, err := sheets.ParseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return ds, nil
}
