package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pilotage/internal/amqp"
	"pilotage/internal/core"
	"pilotage/internal/log"
	"pilotage/internal/sheets"
)

// Consumer delivers dataset changed messages until ctx is done.
type Consumer interface {
	ConsumeDatasetChanged(ctx context.Context, handler func(context.Context, *amqp.DatasetChangedMessage) error) error
}

// SyncWorker mirrors the local dataset to the spreadsheet. Every change
// message triggers a full copy, and a periodic copy covers lost messages.
type SyncWorker struct {
	source   sheets.DatasetReader
	target   sheets.DatasetWriter
	interval time.Duration
	logger   *log.Logger

	mu           sync.Mutex
	lastVersion  int64
	lastMirrored time.Time
}

func NewSyncWorker(source sheets.DatasetReader, target sheets.DatasetWriter, interval time.Duration, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		source:   source,
		target:   target,
		interval: interval,
		logger:   log.OrDiscard(logger).WithComponent(log.ComponentWorker),
	}
}

// HandleDatasetChanged mirrors the dataset in response to msg.
func (w *SyncWorker) HandleDatasetChanged(ctx context.Context, msg *amqp.DatasetChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing dataset changed message",
		log.FieldOperation, msg.Operation,
		log.FieldRows, msg.Rows,
		log.FieldVersion, msg.Version)
	_, err := w.mirror(ctx, true)
	return err
}

// Mirror copies the dataset when it changed since the last copy. It
// reports whether a copy was written.
func (w *SyncWorker) Mirror(ctx context.Context) (bool, error) {
	return w.mirror(ctx, false)
}

func (w *SyncWorker) mirror(ctx context.Context, force bool) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var version int64
	ds, err := func() (core.Dataset, error) {
		if vs, ok := w.source.(sheets.VersionedStore); ok {
			d, v, err := vs.ReadVersioned(ctx)
			version = v
			return d, err
		}
		return w.source.ReadAll(ctx)
	}()
	if err != nil {
		return false, fmt.Errorf("read source: %w", err)
	}

	if !force && version > 0 && version == w.lastVersion {
		w.logger.DebugContext(ctx, "Dataset unchanged, skipping mirror", log.FieldVersion, version)
		return false, nil
	}

	start := time.Now()
	if err := w.target.WriteAll(ctx, ds); err != nil {
		return false, fmt.Errorf("write target: %w", err)
	}
	w.lastVersion = version
	w.lastMirrored = time.Now()

	w.logger.InfoContext(ctx, "Dataset mirrored",
		log.FieldOperation, log.OpSync,
		log.FieldRows, len(ds),
		log.FieldVersion, version,
		log.FieldDuration, time.Since(start).Milliseconds())
	return true, nil
}

// LastMirrored returns when the last successful copy finished.
func (w *SyncWorker) LastMirrored() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastMirrored
}

// Run mirrors once, then consumes messages and mirrors periodically until
// ctx is done or the consumer fails. consumer may be nil.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer) error {
	if _, err := w.mirror(ctx, true); err != nil {
		w.logger.ErrorContext(ctx, "Startup mirror failed", log.FieldError, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeDatasetChanged(ctx, w.HandleDatasetChanged)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := w.Mirror(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Periodic mirror failed", log.FieldError, err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
