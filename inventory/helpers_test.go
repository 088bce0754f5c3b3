package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/fees"
	"Gin_postgres_redis_lending/lock"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testingT interface {
	require.TestingT
	Helper()
}

var errBoom = errors.New("boom")

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	mem   *db.MemStore
	store Store
	rec   *notify.Recorder
	m     *Machine
	now   time.Time
	seq   int
}

func newFixture(cfg config.Values, opts ...Option) *fixture {
	mem := db.NewMemStore()
	return newFixtureWith(mem, mem, cfg, opts...)
}

func newFixtureWith(mem *db.MemStore, store Store, cfg config.Values, opts ...Option) *fixture {
	f := &fixture{mem: mem, store: store, rec: &notify.Recorder{}, now: start}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNotifier(f.rec),
		WithClock(func() time.Time { return f.now }),
		WithIDGenerator(func() string {
			f.seq++
			return fmt.Sprintf("auto-%d", f.seq)
		}),
	}
	f.m = New(store, fees.NewCalculator(cfg), append(base, opts...)...)
	return f
}

func ptr[T any](v T) *T { return &v }

func money(s string) *decimal.Decimal { return ptr(decimal.RequireFromString(s)) }

func (f *fixture) addItem(t testingT, id string, mut ...func(*models.Item)) *models.Item {
	t.Helper()
	it := &models.Item{ID: id, Serial: "SN-" + id, Name: id, Kind: models.KindLoanable, Status: models.ItemAvailable}
	for _, fn := range mut {
		fn(it)
	}
	require.NoError(t, f.mem.SaveItem(context.Background(), it))
	return it
}

func (f *fixture) addAccessory(t testingT, id, value string) {
	t.Helper()
	require.NoError(t, f.mem.SaveAccessory(context.Background(), &models.Accessory{
		ID: id, Label: id, Status: models.AccessoryAvailable, ReplacementValue: decimal.RequireFromString(value),
	}))
}

// record saves tx the way the ingestion handler does before Apply.
func (f *fixture) record(t testingT, tx models.Transaction) *models.Transaction {
	t.Helper()
	if tx.BorrowDate.IsZero() {
		tx.BorrowDate = f.now
	}
	require.NoError(t, f.mem.SaveTransaction(context.Background(), &tx))
	return &tx
}

func (f *fixture) apply(t testingT, tx models.Transaction) (Outcome, *models.Transaction) {
	t.Helper()
	saved := f.record(t, tx)
	return f.m.Apply(context.Background(), saved), saved
}

func (f *fixture) item(t testingT, id string) *models.Item {
	t.Helper()
	it, err := f.mem.LoadItem(context.Background(), id)
	require.NoError(t, err)
	return it
}

func (f *fixture) accessory(t testingT, id string) *models.Accessory {
	t.Helper()
	a, err := f.mem.LoadAccessory(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) tx(t testingT, id string) *models.Transaction {
	t.Helper()
	tx, err := f.mem.LoadTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (f *fixture) openWithdrawals(t testingT, itemID string) []models.Transaction {
	t.Helper()
	ts, err := f.mem.FindTransactions(context.Background(), db.TransactionQuery{ItemID: itemID, OpenOnly: true})
	require.NoError(t, err)
	return ts
}

func (f *fixture) returns(t testingT, itemID string) []models.Transaction {
	t.Helper()
	ts, err := f.mem.FindTransactions(context.Background(), db.TransactionQuery{ItemID: itemID, Action: models.ActionReturn})
	require.NoError(t, err)
	return ts
}

func withdraw(id, item, borrower string) models.Transaction {
	tx := models.Transaction{ID: id, ItemID: ptr(item), Action: models.ActionWithdraw}
	if borrower != "" {
		tx.BorrowerID = ptr(borrower)
	}
	return tx
}

func returnTx(id, item, borrower string, issue models.InspectionIssue) models.Transaction {
	tx := models.Transaction{ID: id, ItemID: ptr(item), Action: models.ActionReturn, BorrowerID: ptr(borrower)}
	if issue != "" {
		tx.InspectionIssue = ptr(issue)
	}
	return tx
}

func issueTx(id, item string, issue models.InspectionIssue) models.Transaction {
	tx := models.Transaction{ID: id, ItemID: ptr(item), Action: models.ActionIssue}
	if issue != "" {
		tx.InspectionIssue = ptr(issue)
	}
	return tx
}

// failingStore fails saves for the listed ids and passes the rest through.
type failingStore struct {
	*db.MemStore
	fail map[string]bool
}

func (s *failingStore) SaveItem(ctx context.Context, it *models.Item) error {
	if s.fail[it.ID] {
		return errBoom
	}
	return s.MemStore.SaveItem(ctx, it)
}

func (s *failingStore) SaveAccessory(ctx context.Context, a *models.Accessory) error {
	if s.fail[a.ID] {
		return errBoom
	}
	return s.MemStore.SaveAccessory(ctx, a)
}

func (s *failingStore) SaveTransaction(ctx context.Context, t *models.Transaction) error {
	if s.fail[t.ID] {
		return errBoom
	}
	return s.MemStore.SaveTransaction(ctx, t)
}

// recordingLocker counts acquisitions and releases on top of a real locker.
type recordingLocker struct {
	mu       sync.Mutex
	inner    lock.Locker
	keys     []string
	released int
	err      error
}

func (l *recordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	release, err := l.inner.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
		release()
	}, nil
}

func returnQuery(itemID string) db.TransactionQuery {
	return db.TransactionQuery{ItemID: itemID, Action: models.ActionReturn}
}
