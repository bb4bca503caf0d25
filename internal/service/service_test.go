package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stockledger-api/internal/cache"
	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/internal/repository"
)

// recorder is a notify.Publisher that keeps everything it is given.
type recorder struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recorder) Publish(_ context.Context, n model.Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Event)
	}
	return out
}

func (r *recorder) find(event string) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.sent {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

// faultyStore wraps a store to fail inside or after an atomic unit.
type faultyStore struct {
	repository.Store
	failItem  int64 // ApplyDelta on this item fails
	commitErr error // reported after a successful unit
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(q repository.Queries) error) error {
	err := f.Store.WithinTx(ctx, func(q repository.Queries) error {
		return fn(&faultyQueries{Queries: q, failItem: f.failItem})
	})
	if err == nil && f.commitErr != nil {
		return &repository.TxError{Stage: "commit", Err: f.commitErr}
	}
	return err
}

type faultyQueries struct {
	repository.Queries
	failItem int64
}

func (q *faultyQueries) ApplyDelta(ctx context.Context, itemID, delta int64) (model.QuantityChange, error) {
	if itemID == q.failItem {
		return model.QuantityChange{}, errors.New("disk I/O error")
	}
	return q.Queries.ApplyDelta(ctx, itemID, delta)
}

type fixture struct {
	store   *repository.SQLStore
	cache   *cache.MemoryCache
	metrics *metrics.Metrics
	notes   *recorder

	engine  *Engine
	audits  *AuditService
	catalog *CatalogService
	reports *ReportService

	main, north     *model.Warehouse
	admin, employee *model.Identity
	outsider        *model.Identity // employee of north
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	store, err := repository.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "ledger.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:   store,
		cache:   cache.NewMemoryCache(),
		metrics: metrics.New(prometheus.NewRegistry()),
		notes:   &recorder{},
		main:    &model.Warehouse{Name: "Main"},
		north:   &model.Warehouse{Name: "North"},
	}
	t.Cleanup(func() { f.cache.Close() })

	require.NoError(t, store.CreateWarehouse(ctx, f.main))
	require.NoError(t, store.CreateWarehouse(ctx, f.north))

	users := []*model.User{
		{NationalID: "A-1", Name: "Ada", Role: model.RoleAdmin},
		{NationalID: "E-1", Name: "Eve", Role: model.RoleEmployee, WarehouseID: &f.main.ID},
		{NationalID: "N-1", Name: "Ned", Role: model.RoleEmployee, WarehouseID: &f.north.ID},
	}
	for _, u := range users {
		require.NoError(t, store.CreateUser(ctx, u))
	}
	f.admin, f.employee, f.outsider = model.IdentityOf(users[0]), model.IdentityOf(users[1]), model.IdentityOf(users[2])

	f.wire(t, store)
	return f
}

// wire builds the services on top of st, which may wrap f.store.
func (f *fixture) wire(t *testing.T, st repository.Store) {
	log := zaptest.NewLogger(t)
	f.engine = NewEngine(st, f.notes, f.metrics, log, EngineConfig{LowStockThreshold: 3})
	f.reports = NewReportService(st, f.cache, time.Minute, 3, log)
	f.engine.OnCommit(f.reports.Invalidate)
	f.audits = NewAuditService(st, f.engine, f.notes, f.metrics, log)
	f.catalog = NewCatalogService(st, f.engine, f.notes, log)
}

func (f *fixture) item(t *testing.T, w *model.Warehouse, name string, qty int64) *model.Item {
	t.Helper()
	item, err := f.catalog.CreateItem(context.Background(), f.admin, ItemInput{Name: name, WarehouseID: w.ID, Quantity: qty})
	require.NoError(t, err)
	return item
}

func (f *fixture) quantity(t *testing.T, itemID int64) int64 {
	t.Helper()
	qty, err := f.store.GetQuantity(context.Background(), itemID)
	require.NoError(t, err)
	return qty
}

func (f *fixture) ledger(t *testing.T, itemID int64) []model.Transaction {
	t.Helper()
	txs, err := f.store.ListTransactions(context.Background(), model.TransactionFilter{ItemID: &itemID})
	require.NoError(t, err)
	return txs
}

func ledgerSum(txs []model.Transaction) int64 {
	var sum int64
	for _, tx := range txs {
		sum += tx.Delta
	}
	return sum
}

func requireKind(t *testing.T, err error, k ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, IsKind(err, k), "want %s error, got %v", k, err)
}
