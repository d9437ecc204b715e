package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"penny/internal/amqp"
	"penny/internal/anomaly"
	"penny/internal/cache"
	"penny/internal/categorize"
	"penny/internal/core"
	"penny/internal/csvimport"
	"penny/internal/dashboard"
	"penny/internal/ingest"
	applog "penny/internal/log"
	"penny/internal/storage"
)

// EventPublisher announces expense lifecycle events. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
	Close() error
}

// Options configures an ExpenseService. Store, Rules and Detector are
// required.
type Options struct {
	Store     storage.Store
	Rules     *categorize.RuleTable
	Detector  *anomaly.Detector
	Publisher EventPublisher
	// DashboardCacheTTL of zero disables dashboard caching.
	DashboardCacheTTL time.Duration
	Logger            *applog.Logger
}

// ExpenseService orchestrates expense operations across the store, the
// ingestion pipeline, the dashboard cache and AMQP.
type ExpenseService struct {
	store     storage.Store
	rules     *categorize.RuleTable
	pipeline  *ingest.Pipeline
	importer  *csvimport.Importer
	publisher EventPublisher
	logger    *applog.Logger
	events    *applog.StructuredLogger

	dashboards cache.Cache[core.DashboardView]
	group      singleflight.Group

	created     atomic.Int64
	deleted     atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Metrics is a snapshot of the service counters since startup.
type Metrics struct {
	ExpensesCreated      int64
	ExpensesDeleted      int64
	DashboardCacheHits   int64
	DashboardCacheMisses int64
	DashboardCacheSize   int
}

func NewExpenseService(opts Options) (*ExpenseService, error) {
	if opts.Store == nil || opts.Rules == nil || opts.Detector == nil {
		return nil, errors.New("expense service: store, rules and detector are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentExpense)

	s := &ExpenseService{
		store:     opts.Store,
		rules:     opts.Rules,
		publisher: opts.Publisher,
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
		pipeline:  ingest.NewPipeline(categorize.New(opts.Rules), opts.Detector, opts.Store),
	}
	s.importer = csvimport.NewImporter(s)
	if opts.DashboardCacheTTL > 0 {
		s.dashboards = cache.NewLRUCache[core.DashboardView](4, opts.DashboardCacheTTL)
	}
	return s, nil
}

// DashboardCache exposes the cache for registration with a cache.Manager.
// It is nil when caching is disabled.
func (s *ExpenseService) DashboardCache() cache.Cleaner {
	if c, ok := s.dashboards.(cache.Cleaner); ok {
		return c
	}
	return nil
}

// Ingest categorizes, checks and stores one expense, then publishes a
// created event. It is the single entry point for both single creates and
// CSV rows.
func (s *ExpenseService) Ingest(ctx context.Context, n core.NewExpense) (core.Expense, error) {
	e, decision, err := s.pipeline.Ingest(ctx, n)
	if err != nil {
		var verr *core.ValidationError
		if !errors.As(err, &verr) {
			s.events.LogError(ctx, "Failed to store expense", err, applog.ComponentStorage, applog.OpCreate,
				applog.NewFields().WithErrorType(applog.ErrorTypeDatabase))
		}
		return core.Expense{}, err
	}
	s.created.Add(1)
	s.invalidate()
	s.events.LogExpenseCreated(ctx, e,
		applog.NewFields().WithAnomalyDecision(string(decision.Method), decision.Threshold))
	s.publish(ctx, amqp.NewExpenseCreatedEvent(e))
	return e, nil
}

// CreateExpense is Ingest for a single user-submitted expense.
func (s *ExpenseService) CreateExpense(ctx context.Context, n core.NewExpense) (core.Expense, error) {
	return s.Ingest(ctx, n)
}

func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	return s.store.Get(ctx, id)
}

func (s *ExpenseService) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	return s.store.List(ctx)
}

// DeleteExpense removes an expense and publishes a deleted event. It returns
// storage.ErrNotFound for an unknown id.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.deleted.Add(1)
	s.invalidate()
	s.logger.InfoContext(ctx, "Expense deleted",
		applog.FieldExpenseID, id,
		applog.FieldOperation, applog.OpDelete)
	s.publish(ctx, amqp.NewExpenseDeletedEvent(id))
	return nil
}

// ImportCSV ingests every row of r in order. See csvimport.Importer.Import.
func (s *ExpenseService) ImportCSV(ctx context.Context, r io.Reader) (csvimport.Result, error) {
	start := time.Now()
	res, err := s.importer.Import(ctx, r)
	logger := s.logger.WithComponent(applog.ComponentImport)
	fields := applog.NewFields().
		WithImport(res.Added, res.Failed).
		WithOperation(applog.OpImport).
		WithError(err)
	fields[applog.FieldDuration] = time.Since(start).Milliseconds()
	if err != nil {
		logger.WarnContext(ctx, "CSV import stopped", fields.ToSlice()...)
	} else {
		logger.InfoContext(ctx, "CSV import finished", fields.ToSlice()...)
	}
	return res, err
}

// Dashboard returns the dashboard view of the current store contents. With
// caching enabled the view is keyed by the store version, so a create or
// delete by any writer of the store, this process or another, makes older
// views unreachable. Concurrent misses share one build.
func (s *ExpenseService) Dashboard(ctx context.Context) (core.DashboardView, error) {
	version, err := s.store.Version(ctx)
	if err != nil {
		return core.DashboardView{}, fmt.Errorf("store version: %w", err)
	}
	key := "dashboard:" + version

	if s.dashboards != nil {
		if view, ok := s.dashboards.Get(key); ok {
			s.cacheHits.Add(1)
			return view, nil
		}
	}
	s.cacheMisses.Add(1)

	// The version is read before the list, so a view cached under key is
	// never older than key.
	v, err, _ := s.group.Do(key, func() (any, error) {
		expenses, err := s.store.List(ctx)
		if err != nil {
			return core.DashboardView{}, fmt.Errorf("list expenses: %w", err)
		}
		view := dashboard.Build(expenses)
		if s.dashboards != nil {
			s.dashboards.Set(key, view)
		}
		return view, nil
	})
	if err != nil {
		return core.DashboardView{}, err
	}
	return v.(core.DashboardView), nil
}

// Metrics returns the current counters.
func (s *ExpenseService) Metrics() Metrics {
	m := Metrics{
		ExpensesCreated:      s.created.Load(),
		ExpensesDeleted:      s.deleted.Load(),
		DashboardCacheHits:   s.cacheHits.Load(),
		DashboardCacheMisses: s.cacheMisses.Load(),
	}
	if s.dashboards != nil {
		m.DashboardCacheSize = s.dashboards.Size()
	}
	return m
}

// Rules returns the rule table in use.
func (s *ExpenseService) Rules() *categorize.RuleTable {
	return s.rules
}

// Categorize previews the category a vendor name would be given.
func (s *ExpenseService) Categorize(vendorName string) core.Category {
	return categorize.New(s.rules).Categorize(vendorName)
}

func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// invalidate drops views of versions this process has just superseded.
func (s *ExpenseService) invalidate() {
	if s.dashboards != nil {
		s.dashboards.Purge()
	}
}

// publish runs after the store has committed, so the caller's cancellation
// must not drop the event.
func (s *ExpenseService) publish(ctx context.Context, ev *amqp.ExpenseEvent) {
	ctx = context.WithoutCancel(ctx)
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping event",
			applog.FieldEventType, ev.Type)
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			applog.FieldEventID, ev.EventID,
			applog.FieldEventType, ev.Type,
			applog.FieldExpenseID, ev.ExpenseID,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err)
		// Don't fail the request - the store is authoritative
	}
}

// Close closes both storage and AMQP connections
func (s *ExpenseService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}

	return nil
}
