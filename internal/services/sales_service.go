package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pilotage/internal/amqp"
	"pilotage/internal/cache"
	"pilotage/internal/core"
	"pilotage/internal/log"
	"pilotage/internal/sheets"
)

// EventPublisher is notified after every committed dataset write.
type EventPublisher interface {
	PublishDatasetChanged(ctx context.Context, msg *amqp.DatasetChangedMessage) error
}

// SalesOptions configures a SalesService.
type SalesOptions struct {
	Rules        core.RuleSet
	ProductLines []string
	FirstYear    int
	// InitYear is the year of the placeholder row written for a new outlet.
	InitYear int
	// OptimisticWrites conditions every write on the version read just
	// before it, when the store supports versions.
	OptimisticWrites bool
	// SummaryCacheTTL of zero disables summary caching.
	SummaryCacheTTL time.Duration
	Publisher       EventPublisher
	Logger          *log.Logger
}

// SalesService runs the read-all, mutate, write-all cycle against a store
// and serves aggregated views of the dataset.
type SalesService struct {
	store        sheets.Store
	versioned    sheets.VersionedStore
	rules        core.RuleSet
	productLines []string
	firstYear    int
	initYear     int
	publisher    EventPublisher

	reads     singleflight.Group
	summaries *cache.LRUCache[core.MonthlyTable]
	// cacheMu orders summary cache fills against invalidation. generation
	// counts committed mutations.
	cacheMu    sync.Mutex
	generation uint64

	logger *log.Logger
	events *log.StructuredLogger
	now    func() time.Time
}

const (
	summaryCacheSize  = 256
	sharedReadTimeout = 30 * time.Second
	datasetKey        = "dataset"
)

func NewSalesService(store sheets.Store, opts SalesOptions) *SalesService {
	logger := log.OrDiscard(opts.Logger).WithComponent(log.ComponentSales)
	s := &SalesService{
		store:        store,
		rules:        opts.Rules,
		productLines: append([]string(nil), opts.ProductLines...),
		firstYear:    opts.FirstYear,
		initYear:     opts.InitYear,
		publisher:    opts.Publisher,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		now:          time.Now,
	}
	if vs, ok := store.(sheets.VersionedStore); ok && opts.OptimisticWrites {
		s.versioned = vs
	}
	if opts.SummaryCacheTTL > 0 {
		s.summaries = cache.NewLRUCache[core.MonthlyTable](summaryCacheSize, opts.SummaryCacheTTL)
	}
	return s
}

// SummaryCache returns the summary cache, or nil when caching is off.
func (s *SalesService) SummaryCache() cache.Cleaner {
	if s.summaries == nil {
		return nil
	}
	return s.summaries
}

// Load reads the whole dataset. Concurrent callers share one store read,
// which outlives any single caller giving up.
func (s *SalesService) Load(ctx context.Context) (core.Dataset, error) {
	ch := s.reads.DoChan(datasetKey, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		ds, err := s.store.ReadAll(rctx)
		if err != nil {
			return nil, &core.StoreError{Op: log.OpRead, Err: err}
		}
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.ErrorContext(ctx, "Dataset read failed", log.FieldError, res.Err)
			return nil, res.Err
		}
		if res.Shared {
			s.logger.DebugContext(ctx, "Dataset read coalesced")
		}
		// The result may be handed to several callers.
		return res.Val.(core.Dataset).Clone(), nil
	}
}

// Summary returns the monthly table of one outlet and product line. With
// two or more years the latest is compared against the one before it.
func (s *SalesService) Summary(ctx context.Context, q core.SummaryQuery) (core.MonthlyTable, error) {
	q.Years = core.NormalizeYears(q.Years)
	if len(q.Years) == 0 {
		y := s.now().Year()
		q.Years = []int{y - 1, y}
	}

	key := summaryKey(q)
	var gen uint64
	if s.summaries != nil {
		if t, ok := s.summaries.Get(key); ok {
			return t.Clone(), nil
		}
		s.cacheMu.Lock()
		gen = s.generation
		s.cacheMu.Unlock()
	}

	ds, err := s.Load(ctx)
	if err != nil {
		return core.MonthlyTable{}, err
	}
	table, err := core.Summarize(ds, q, s.rules)
	if err != nil {
		return core.MonthlyTable{}, err
	}
	if s.summaries != nil {
		s.cacheMu.Lock()
		// A mutation committed since gen may postdate ds.
		if s.generation == gen {
			s.summaries.Set(key, table.Clone())
		}
		s.cacheMu.Unlock()
	}
	return table, nil
}

func summaryKey(q core.SummaryQuery) string {
	years := make([]string, len(q.Years))
	for i, y := range q.Years {
		years[i] = strconv.Itoa(y)
	}
	return q.Outlet + "\x00" + q.ProductLine + "\x00" + strings.Join(years, ",")
}

// KPIQuery selects a single-week comparison.
type KPIQuery struct {
	Outlet      string
	ProductLine string
	Week        int
	Current     int
	Baseline    int
}

func (s *SalesService) KPI(ctx context.Context, q KPIQuery) (core.KPI, error) {
	if err := core.ValidateWeek(q.Week); err != nil {
		return core.KPI{}, err
	}
	ds, err := s.Load(ctx)
	if err != nil {
		return core.KPI{}, err
	}
	return core.ComputeKPI(core.Filter(ds, q.Outlet, q.ProductLine), q.Week, q.Current, q.Baseline)
}

// Catalog lists the values offered by data entry forms.
type Catalog struct {
	Outlets      []string `json:"outlets"`
	ProductLines []string `json:"product_lines"`
	Years        []int    `json:"years"`
	Months       []string `json:"months"`
	InitYear     int      `json:"init_year"`
}

func (s *SalesService) Catalog(ctx context.Context) (Catalog, error) {
	ds, err := s.Load(ctx)
	if err != nil {
		return Catalog{}, err
	}
	years := ds.Years()
	last := s.now().Year() + 1
	for y := s.firstYear; y > 0 && y <= last; y++ {
		years = append(years, y)
	}
	months := make([]string, 0, 12)
	for _, m := range core.Months() {
		months = append(months, core.MonthLabel(m))
	}
	return Catalog{
		Outlets:      ds.Outlets(),
		ProductLines: append([]string(nil), s.productLines...),
		Years:        core.NormalizeYears(years),
		Months:       months,
		InitYear:     s.initYear,
	}, nil
}

// MutationResult reports the outcome of a committed write.
type MutationResult struct {
	Rows    int `json:"rows"`
	Removed int `json:"removed,omitempty"`
}

// AppendRecord adds one record. Duplicate periods are kept.
func (s *SalesService) AppendRecord(ctx context.Context, r core.SalesRecord) (MutationResult, error) {
	r.Outlet = strings.TrimSpace(r.Outlet)
	r.ProductLine = strings.TrimSpace(r.ProductLine)
	fields := log.NewFields().WithRecord(r.Outlet, r.ProductLine, r.Week, r.Year)
	fields[log.FieldRevenue] = r.Revenue
	return s.mutate(ctx, log.OpAppend, fields, func(ds core.Dataset) (core.Dataset, int, error) {
		next, err := ds.Append(r)
		return next, 0, err
	})
}

// DeleteAt removes the record at the zero-based position.
func (s *SalesService) DeleteAt(ctx context.Context, pos int) (MutationResult, error) {
	fields := log.NewFields()
	fields[log.FieldPosition] = pos
	return s.mutate(ctx, log.OpDeleteAt, fields, func(ds core.Dataset) (core.Dataset, int, error) {
		next, err := ds.DeleteAt(pos)
		return next, 1, err
	})
}

func (s *SalesService) DeleteLast(ctx context.Context) (MutationResult, error) {
	return s.mutate(ctx, log.OpDeleteLast, nil, func(ds core.Dataset) (core.Dataset, int, error) {
		next, err := ds.DeleteLast()
		return next, 1, err
	})
}

// DeleteMatching removes every record of key. Removing nothing is not an
// error and still rewrites the dataset.
func (s *SalesService) DeleteMatching(ctx context.Context, key core.RecordKey) (MutationResult, error) {
	fields := log.NewFields().WithRecord(key.Outlet, key.ProductLine, key.Week, key.Year)
	return s.mutate(ctx, log.OpDeleteKey, fields, func(ds core.Dataset) (core.Dataset, int, error) {
		next, n := ds.DeleteMatching(key)
		return next, n, nil
	})
}

// InitializeOutlet adds a placeholder row so a new outlet can be selected.
// The default product line is the first configured one.
func (s *SalesService) InitializeOutlet(ctx context.Context, name string) (MutationResult, error) {
	defaults := core.OutletDefaults{Year: s.initYear}
	if len(s.productLines) > 0 {
		defaults.ProductLine = s.productLines[0]
	}
	fields := log.NewFields()
	fields[log.FieldOutlet] = name
	return s.mutate(ctx, log.OpInitOutlet, fields, func(ds core.Dataset) (core.Dataset, int, error) {
		next, err := ds.InitializeOutlet(name, defaults)
		return next, 0, err
	})
}

type mutation func(core.Dataset) (next core.Dataset, removed int, err error)

// mutate performs one fresh read, applies apply and writes the result back
// exactly once. A failed write leaves nothing behind: the candidate dataset
// is dropped and the caller gets a StoreError.
func (s *SalesService) mutate(ctx context.Context, op string, fields log.LogFields, apply mutation) (MutationResult, error) {
	var (
		ds      core.Dataset
		version int64
		err     error
	)
	if s.versioned != nil {
		ds, version, err = s.versioned.ReadVersioned(ctx)
	} else {
		ds, err = s.store.ReadAll(ctx)
	}
	if err != nil {
		err = &core.StoreError{Op: log.OpRead, Err: err}
		s.events.LogError(ctx, "Dataset read failed", err, op, fields)
		return MutationResult{}, err
	}

	next, removed, err := apply(ds)
	if err != nil {
		return MutationResult{}, err
	}

	if s.versioned != nil {
		err = s.versioned.WriteAllIfVersion(ctx, next, version)
	} else {
		err = s.store.WriteAll(ctx, next)
	}
	if err != nil {
		if !errors.Is(err, core.ErrVersionConflict) {
			err = &core.StoreError{Op: log.OpWrite, Err: err}
		}
		s.events.LogError(ctx, "Dataset write failed", err, op, fields)
		return MutationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate()
	written := int64(0)
	if s.versioned != nil {
		written = version + 1
	}
	if fields == nil {
		fields = log.NewFields()
	}
	if removed > 0 {
		fields[log.FieldRemoved] = removed
	}
	s.events.LogDatasetMutation(ctx, op, len(next), written, fields)
	s.publish(ctx, op, len(next), written)

	return MutationResult{Rows: len(next), Removed: removed}, nil
}

// invalidate drops cached views of the dataset after a committed write.
func (s *SalesService) invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.reads.Forget(datasetKey)
	if s.summaries != nil {
		s.summaries.Clear()
	}
}

// publish never fails the mutation: the write is already committed.
func (s *SalesService) publish(ctx context.Context, op string, rows int, version int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDatasetChanged(ctx, amqp.NewDatasetChangedMessage(op, rows, version)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish dataset changed message",
			log.FieldOperation, op, log.FieldError, err)
	}
}
