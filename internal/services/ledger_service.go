package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"speza/internal/amqp"
	"speza/internal/cache"
	"speza/internal/charts"
	"speza/internal/core"
	"speza/internal/export"
	"speza/internal/ledger"
	"speza/internal/log"
)

// Publisher delivers ledger events. *amqp.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt *amqp.TransactionEvent) error
	Close() error
}

// Input carries the raw form fields of a transaction.
type Input struct {
	Date     string `json:"date"`
	Kind     string `json:"type"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Note     string `json:"note"`
}

func (in Input) transaction() (core.Transaction, error) {
	return core.NewTransaction(in.Date, in.Kind, in.Category, in.Amount, in.Note)
}

// Chart selects one of the dashboard images.
type Chart string

const (
	ChartExpenses Chart = "expenses"
	ChartMonthly  Chart = "monthly"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var (
	ErrUnknownChart  = errors.New("unknown chart")
	ErrUnknownFormat = errors.New("unknown export format")
)

// Options configures a LedgerService. Zero values are usable.
type Options struct {
	// MoodThreshold overrides core.DefaultMoodThreshold when set; zero is
	// a valid threshold.
	MoodThreshold *float64
	// CacheTTL bounds how long a cached report may be served; zero keeps
	// it until the next mutation.
	CacheTTL  time.Duration
	Publisher Publisher
	// Cleanup releases the store (see backend.Result).
	Cleanup func() error
	Logger  *log.Logger
}

// LedgerService is the single entry point for reading and mutating the
// ledger. Successful mutations invalidate the derived-view caches and
// are published as events.
type LedgerService struct {
	store     ledger.Store
	publisher Publisher
	cleanup   func() error
	threshold float64

	logger     *log.Logger
	structured *log.StructuredLogger

	caches     *cache.Manager
	reports    *cache.LRUCache[core.Report]
	images     *cache.LRUCache[[]byte]
	generation atomic.Uint64
	group      singleflight.Group
}

func NewLedgerService(store ledger.Store, opts Options) *LedgerService {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)

	threshold := float64(core.DefaultMoodThreshold)
	if opts.MoodThreshold != nil {
		threshold = *opts.MoodThreshold
	}

	s := &LedgerService{
		store:      store,
		publisher:  opts.Publisher,
		cleanup:    opts.Cleanup,
		threshold:  threshold,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		caches:     cache.NewManager(logger.Logger),
		reports:    cache.NewLRUCache[core.Report](4, opts.CacheTTL),
		images:     cache.NewLRUCache[[]byte](8, opts.CacheTTL),
	}
	s.caches.Register(s.reports)
	s.caches.Register(s.images)
	if opts.CacheTTL > 0 {
		s.caches.StartCleanup(opts.CacheTTL)
	}
	return s
}

// SupportsIDs reports whether the backing store accepts id-addressed
// mutations.
func (s *LedgerService) SupportsIDs() bool {
	_, ok := s.store.(ledger.IDStore)
	return ok
}

func (s *LedgerService) List(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return txs, nil
}

// Add validates in and appends it. Nothing is stored when the amount is
// not a number.
func (s *LedgerService) Add(ctx context.Context, in Input) (core.Transaction, error) {
	t, err := in.transaction()
	if err != nil {
		return core.Transaction{}, err
	}
	if s.SupportsIDs() {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	if err := s.store.Append(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	s.changed(ctx, amqp.OpAdded, -1, t.ID, &t)
	return t, nil
}

// DeleteAt removes the row at index; false means the index was out of range.
func (s *LedgerService) DeleteAt(ctx context.Context, index int) (bool, error) {
	applied, err := s.store.DeleteAt(ctx, index)
	if err != nil {
		return false, fmt.Errorf("delete transaction %d: %w", index, err)
	}
	if applied {
		s.changed(ctx, amqp.OpDeleted, index, "", nil)
	}
	return applied, nil
}

// EditAt replaces the row at index. An invalid amount rejects the whole
// edit; false means the index was out of range.
func (s *LedgerService) EditAt(ctx context.Context, index int, in Input) (bool, error) {
	t, err := in.transaction()
	if err != nil {
		return false, err
	}
	applied, err := s.store.EditAt(ctx, index, t)
	if err != nil {
		return false, fmt.Errorf("edit transaction %d: %w", index, err)
	}
	if applied {
		s.changed(ctx, amqp.OpEdited, index, "", &t)
	}
	return applied, nil
}

func (s *LedgerService) idStore() (ledger.IDStore, error) {
	ids, ok := s.store.(ledger.IDStore)
	if !ok {
		return nil, core.ErrIDsUnsupported
	}
	return ids, nil
}

func (s *LedgerService) DeleteByID(ctx context.Context, id string) error {
	ids, err := s.idStore()
	if err != nil {
		return err
	}
	if err := ids.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	s.changed(ctx, amqp.OpDeleted, -1, id, nil)
	return nil
}

func (s *LedgerService) EditByID(ctx context.Context, id string, in Input) (core.Transaction, error) {
	ids, err := s.idStore()
	if err != nil {
		return core.Transaction{}, err
	}
	t, err := in.transaction()
	if err != nil {
		return core.Transaction{}, err
	}
	if err := ids.EditByID(ctx, id, t); err != nil {
		return core.Transaction{}, fmt.Errorf("edit transaction %s: %w", id, err)
	}
	t.ID = id
	s.changed(ctx, amqp.OpEdited, -1, id, &t)
	return t, nil
}

// ClearAll empties the ledger, keeping its header.
func (s *LedgerService) ClearAll(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	s.changed(ctx, amqp.OpCleared, -1, "", nil)
	return nil
}

// cacheKey names a derived view of the current ledger contents. ok is false
// when the store cannot tell whether it changed, in which case nothing is
// cached.
func (s *LedgerService) cacheKey(ctx context.Context, view string) (key string, ok bool) {
	vs, ok := s.store.(ledger.Versioned)
	if !ok {
		return "", false
	}
	version, err := vs.Version(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Store version unavailable, bypassing cache", log.FieldError, err)
		return "", false
	}
	return view + ":" + strconv.FormatUint(s.generation.Load(), 10) + ":" + version, true
}

func (s *LedgerService) aggregate(ctx context.Context) (core.Report, error) {
	txs, err := s.store.Load(ctx)
	if err != nil {
		return core.Report{}, fmt.Errorf("load ledger: %w", err)
	}
	return core.AggregateWith(txs, core.AggregateOptions{MoodThreshold: s.threshold}), nil
}

// Report returns the aggregate view of the ledger. Results are cached per
// store version and concurrent misses share one load.
func (s *LedgerService) Report(ctx context.Context) (core.Report, error) {
	key, cacheable := s.cacheKey(ctx, "report")
	if !cacheable {
		return s.aggregate(ctx)
	}
	if r, ok := s.reports.Get(key); ok {
		return r, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		r, err := s.aggregate(ctx)
		if err != nil {
			return core.Report{}, err
		}
		s.reports.Set(key, r)
		return r, nil
	})
	if err != nil {
		return core.Report{}, err
	}
	return v.(core.Report), nil
}

// Chart renders one dashboard image as PNG. It returns charts.ErrNoData
// when there is nothing to draw.
func (s *LedgerService) Chart(ctx context.Context, which Chart) ([]byte, error) {
	var render func(core.Report) ([]byte, error)
	switch which {
	case ChartExpenses:
		render = charts.ExpensePie
	case ChartMonthly:
		render = charts.MonthlyTrend
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChart, which)
	}

	key, cacheable := s.cacheKey(ctx, string(which))
	if cacheable {
		if img, ok := s.images.Get(key); ok {
			return img, nil
		}
	}

	r, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	img, err := render(r)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.images.Set(key, img)
	}
	return img, nil
}

// Export writes the ledger to w as csv or xlsx.
func (s *LedgerService) Export(ctx context.Context, w io.Writer, format string) error {
	switch format {
	case FormatCSV, FormatXLSX:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	txs, err := s.List(ctx)
	if err != nil {
		return err
	}
	if format == FormatCSV {
		return export.CSV(w, txs)
	}
	r, err := s.Report(ctx)
	if err != nil {
		return err
	}
	return export.XLSX(w, txs, r)
}

// changed invalidates cached views, logs the mutation and publishes it.
func (s *LedgerService) changed(ctx context.Context, op amqp.Op, index int, id string, t *core.Transaction) {
	s.generation.Add(1)
	s.reports.Clear()
	s.images.Clear()

	var kind, category string
	var amount float64
	if t != nil {
		kind, category, amount = t.Kind, t.Category, t.Amount
	}
	s.structured.LogTransactionChange(ctx, string(op), index, id, kind, category, amount)

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping", log.FieldOperation, op)
		return
	}
	if err := s.publisher.Publish(ctx, amqp.NewTransactionEvent(op, index, id, t)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldOperation, op,
			log.FieldIndex, index,
			log.FieldError, err)
	}
}

// CacheStats reports hit and eviction counters of the report and chart
// caches.
func (s *LedgerService) CacheStats() (reports, images cache.Stats) {
	return s.reports.Stats(), s.images.Stats()
}

// Close stops cache cleanup and releases the store and the publisher.
func (s *LedgerService) Close() error {
	s.caches.Stop()
	reports, images := s.CacheStats()
	s.logger.Debug("Cache statistics",
		"report_hits", reports.Hits,
		"report_misses", reports.Misses,
		"chart_hits", images.Hits,
		"chart_misses", images.Misses)

	var errs []error
	if s.cleanup != nil {
		if err := s.cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}
