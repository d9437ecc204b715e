package services

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/amqp"
	"penny/internal/anomaly"
	"penny/internal/categorize"
	"penny/internal/core"
	applog "penny/internal/log"
	"penny/internal/storage"
	"penny/internal/storage/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
	closed bool
}

func (p *fakePublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

// cancelOnAppend cancels the caller's context when the nth checked append
// starts, as if the client went away in the middle of that row.
type cancelOnAppend struct {
	storage.Store
	n      int
	calls  int
	cancel context.CancelFunc
}

func (s *cancelOnAppend) AppendChecked(ctx context.Context, e core.Expense, check func(anomaly.History) bool) (core.Expense, error) {
	s.calls++
	if s.calls == s.n {
		s.cancel()
	}
	return s.Store.AppendChecked(ctx, e, check)
}

type countingStore struct {
	storage.Store
	lists atomic.Int32
}

func (s *countingStore) List(ctx context.Context) ([]core.Expense, error) {
	s.lists.Add(1)
	return s.Store.List(ctx)
}

func newService(t *testing.T, store storage.Store, pub EventPublisher, ttl time.Duration) *ExpenseService {
	t.Helper()
	d, err := anomaly.NewDetector(anomaly.DefaultConfig())
	require.NoError(t, err)
	var buf bytes.Buffer
	svc, err := NewExpenseService(Options{
		Store:             store,
		Rules:             categorize.Default(),
		Detector:          d,
		Publisher:         pub,
		DashboardCacheTTL: ttl,
		Logger:            applog.New(applog.Config{Output: &buf}),
	})
	require.NoError(t, err)
	return svc
}

func newExpense(vendor string, cents int64) core.NewExpense {
	return core.NewExpense{Date: core.NewDate(2024, 1, 10), Amount: core.Money{Cents: cents}, VendorName: vendor}
}

func TestNewExpenseService_RequiresCollaborators(t *testing.T) {
	_, err := NewExpenseService(Options{})
	assert.Error(t, err)
}

func TestCreateExpense_PublishesCreatedEvent(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, memory.NewStore(), pub, 0)

	e, err := svc.CreateExpense(context.Background(), newExpense("Swiggy", 35000))
	require.NoError(t, err)
	assert.Equal(t, core.Food, e.Category)

	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventExpenseCreated, pub.events[0].Type)
	assert.Equal(t, e.ID, pub.events[0].ExpenseID)
	assert.NoError(t, pub.events[0].Validate())
}

func TestCreateExpense_ValidationErrorPublishesNothing(t *testing.T) {
	pub := &fakePublisher{}
	store := memory.NewStore()
	svc := newService(t, store, pub, 0)

	_, err := svc.CreateExpense(context.Background(), newExpense("Swiggy", 0))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, pub.events)

	list, _ := store.List(context.Background())
	assert.Empty(t, list)
}

func TestCreateExpense_PublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newService(t, memory.NewStore(), pub, 0)

	e, err := svc.CreateExpense(context.Background(), newExpense("Uber", 18000))
	require.NoError(t, err)
	assert.Positive(t, e.ID)
}

func TestCreateExpense_NoPublisher(t *testing.T) {
	svc := newService(t, memory.NewStore(), nil, 0)
	_, err := svc.CreateExpense(context.Background(), newExpense("Uber", 18000))
	assert.NoError(t, err)
}

func TestDeleteExpense(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, memory.NewStore(), pub, 0)
	ctx := context.Background()

	e, err := svc.CreateExpense(ctx, newExpense("Ola", 30000))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteExpense(ctx, e.ID))
	assert.ErrorIs(t, svc.DeleteExpense(ctx, e.ID), storage.ErrNotFound)
	_, err = svc.GetExpense(ctx, e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.Len(t, pub.events, 2)
	assert.Equal(t, amqp.EventExpenseDeleted, pub.events[1].Type)
	assert.Equal(t, e.ID, pub.events[1].ExpenseID)
}

func TestDashboard_CacheHitAndInvalidation(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	svc := newService(t, store, nil, time.Minute)
	ctx := context.Background()

	_, err := svc.CreateExpense(ctx, newExpense("Swiggy", 35000))
	require.NoError(t, err)

	v1, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	v2, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.TotalExpenses)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), store.lists.Load(), "second read is served from cache")

	e, err := svc.CreateExpense(ctx, newExpense("Amazon", 250000))
	require.NoError(t, err)
	v3, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v3.TotalExpenses)

	require.NoError(t, svc.DeleteExpense(ctx, e.ID))
	v4, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v4.TotalExpenses)
	assert.Equal(t, int32(3), store.lists.Load())
}

func TestDashboard_NoCacheAlwaysRecomputes(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	svc := newService(t, store, nil, 0)
	ctx := context.Background()

	_, _ = svc.Dashboard(ctx)
	_, _ = svc.Dashboard(ctx)
	assert.Equal(t, int32(2), store.lists.Load())
	assert.Nil(t, svc.DashboardCache())
}

func TestImportCSV_PublishesPerAddedRow(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, memory.NewStore(), pub, time.Minute)
	ctx := context.Background()

	before, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, before.TotalExpenses)

	res, err := svc.ImportCSV(ctx, strings.NewReader("date,amount,vendor_name,description\n2024-01-10,350,Swiggy,\nbad,1,x,\n2024-01-15,75000,Amazon,Laptop\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, pub.events, 2)

	after, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, after.TotalExpenses)
	assert.Equal(t, 1, after.AnomalyCount)
}

func TestCategorizeAndRules(t *testing.T) {
	svc := newService(t, memory.NewStore(), nil, 0)
	assert.Equal(t, core.Entertainment, svc.Categorize("Netflix India"))
	assert.Equal(t, categorize.Default().Len(), svc.Rules().Len())
}

func TestClose(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, memory.NewStore(), pub, 0)
	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}

func TestImportCSV_CancelledRowStillCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{}
	store := &cancelOnAppend{Store: memory.NewStore(), n: 2, cancel: cancel}
	svc := newService(t, store, pub, time.Minute)

	res, err := svc.ImportCSV(ctx, strings.NewReader(
		"date,amount,vendor_name,description\n"+
			"2024-01-10,350,Swiggy,\n"+
			"2024-01-11,180,Uber,\n"+
			"2024-01-12,90,Ola,\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Added, "the row in flight when cancelled is finished and counted")
	assert.Zero(t, res.Failed)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Len(t, pub.events, 2, "every stored row is announced")

	view, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalExpenses)
}

func TestDashboard_SeesWritesFromAnotherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "penny.db")
	open := func() storage.Store {
		repo, err := storage.NewSQLiteRepository(path)
		require.NoError(t, err)
		return repo
	}
	server := newService(t, open(), nil, 5*time.Minute)
	defer server.Close()
	cli := newService(t, open(), nil, 0)
	defer cli.Close()
	ctx := context.Background()

	before, err := server.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, before.TotalExpenses)

	e, err := cli.CreateExpense(ctx, newExpense("Swiggy", 35000))
	require.NoError(t, err)

	after, err := server.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalExpenses)

	require.NoError(t, cli.DeleteExpense(ctx, e.ID))
	final, err := server.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, final.TotalExpenses)
}

func TestMetrics(t *testing.T) {
	svc := newService(t, memory.NewStore(), nil, time.Minute)
	ctx := context.Background()

	e, err := svc.CreateExpense(ctx, newExpense("Swiggy", 35000))
	require.NoError(t, err)
	_, err = svc.CreateExpense(ctx, newExpense("Uber", 18000))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteExpense(ctx, e.ID))
	_, _ = svc.CreateExpense(ctx, newExpense("Uber", 0))

	_, _ = svc.Dashboard(ctx)
	_, _ = svc.Dashboard(ctx)

	m := svc.Metrics()
	assert.Equal(t, int64(2), m.ExpensesCreated, "rejected creates are not counted")
	assert.Equal(t, int64(1), m.ExpensesDeleted)
	assert.Equal(t, int64(1), m.DashboardCacheMisses)
	assert.Equal(t, int64(1), m.DashboardCacheHits)
	assert.Equal(t, 1, m.DashboardCacheSize)
}
