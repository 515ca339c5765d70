package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"pilotage/internal/core"
	"pilotage/internal/log"
	ports "pilotage/internal/sheets"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists the dataset in a local SQLite file. Row order is
// kept in the position column and a single version row changes on every
// write.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var _ ports.VersionedStore = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway and this avoids
	// SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ReadAll(ctx context.Context) (core.Dataset, error) {
	ds, _, err := r.ReadVersioned(ctx)
	return ds, err
}

// ReadVersioned returns the dataset and its version from one snapshot.
func (r *SQLiteRepository) ReadVersioned(ctx context.Context) (core.Dataset, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	version, err := currentVersion(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT outlet, product_line, week, year, revenue FROM sales_records ORDER BY position`)
	if err != nil {
		return nil, 0, fmt.Errorf("query sales records: %w", err)
	}
	defer rows.Close()

	ds := core.Dataset{}
	for rows.Next() {
		var rec core.SalesRecord
		if err := rows.Scan(&rec.Outlet, &rec.ProductLine, &rec.Week, &rec.Year, &rec.Revenue); err != nil {
			return nil, 0, fmt.Errorf("scan sales record: %w", err)
		}
		ds = append(ds, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sales records: %w", err)
	}
	return ds, version, nil
}

// WriteAll replaces every row, unconditionally.
func (r *SQLiteRepository) WriteAll(ctx context.Context, ds core.Dataset) error {
	return r.write(ctx, ds, -1)
}

// WriteAllIfVersion replaces every row when the stored version still equals
// version, and fails with core.ErrVersionConflict otherwise.
func (r *SQLiteRepository) WriteAllIfVersion(ctx context.Context, ds core.Dataset, version int64) error {
	return r.write(ctx, ds, version)
}

func (r *SQLiteRepository) write(ctx context.Context, ds core.Dataset, expected int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	version, err := currentVersion(ctx, tx)
	if err != nil {
		return err
	}
	if expected >= 0 && version != expected {
		return fmt.Errorf("%w: have %d, expected %d", core.ErrVersionConflict, version, expected)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales_records`); err != nil {
		return fmt.Errorf("clear sales records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sales_records (position, outlet, product_line, week, year, revenue) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, rec := range ds {
		if _, err := stmt.ExecContext(ctx, i, rec.Outlet, rec.ProductLine, rec.Week, rec.Year, rec.Revenue); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dataset_version SET version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = 1`); err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write: %w", err)
	}

	r.logger.DebugContext(ctx, "Dataset stored", log.FieldRows, len(ds), log.FieldVersion, version+1)
	return nil
}

func currentVersion(ctx context.Context, tx *sql.Tx) (int64, error) {
	var v int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM dataset_version WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read dataset version: %w", err)
	}
	return v, nil
}
