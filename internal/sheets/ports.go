package sheets

import (
	"context"

	"pilotage/internal/core"
)

// Ports for outbound adapters. Every store persists the dataset as a whole:
// callers read everything, mutate in memory and write everything back.
type (
	DatasetReader interface {
		ReadAll(ctx context.Context) (core.Dataset, error)
	}

	DatasetWriter interface {
		// WriteAll replaces the persisted dataset with ds.
		WriteAll(ctx context.Context, ds core.Dataset) error
	}

	Store interface {
		DatasetReader
		DatasetWriter
	}

	// VersionedStore exposes a version token that changes on every write.
	// WriteAllIfVersion fails with core.ErrVersionConflict when the stored
	// version differs from version.
	VersionedStore interface {
		Store
		ReadVersioned(ctx context.Context) (core.Dataset, int64, error)
		WriteAllIfVersion(ctx context.Context, ds core.Dataset, version int64) error
	}
)
