// Package inventory applies saved loan transactions to item and accessory
// state, keeping every item at no more than one open withdrawal.
package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/fees"
	"Gin_postgres_redis_lending/lock"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrCascadeDepth is recorded when an auto-return would nest inside another
// one. It can only happen if the return path starts issuing withdrawals.
var ErrCascadeDepth = errors.New("auto-return cascade nested too deep")

// maxCascadeDepth bounds withdraw -> auto-return to a single hop.
const maxCascadeDepth = 1

// Store is the entity store the machine reads and writes. db.Repo and
// db.MemStore both satisfy it.
type Store interface {
	LoadItem(ctx context.Context, id string) (*models.Item, error)
	SaveItem(ctx context.Context, it *models.Item) error
	LoadAccessory(ctx context.Context, id string) (*models.Accessory, error)
	LoadAccessories(ctx context.Context, ids []string) ([]models.Accessory, error)
	SaveAccessory(ctx context.Context, a *models.Accessory) error
	LoadTransaction(ctx context.Context, id string) (*models.Transaction, error)
	SaveTransaction(ctx context.Context, t *models.Transaction) error
	FindTransactions(ctx context.Context, q db.TransactionQuery) ([]models.Transaction, error)
}

type Machine struct {
	store    Store
	fees     *fees.Calculator
	notifier notify.Notifier
	locker   lock.Locker
	log      *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option { return func(m *Machine) { m.log = l } }
func WithNotifier(n notify.Notifier) Option { return func(m *Machine) { m.notifier = n } }
func WithLocker(l lock.Locker) Option { return func(m *Machine) { m.locker = l } }
func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }
func WithTracer(t trace.Tracer) Option { return func(m *Machine) { m.tracer = t } }
func WithIDGenerator(f func() string) Option { return func(m *Machine) { m.newID = f } }

func New(store Store, calc *fees.Calculator, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		fees:   calc,
		log:    slog.Default(),
		tracer: otel.Tracer("Gin_postgres_redis_lending/inventory"),
		locker: lock.NewLocal(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	if m.fees == nil {
		m.fees = fees.NewCalculator(config.Values{})
	}
	if m.notifier == nil {
		m.notifier = notify.NewLogNotifier(m.log)
	}
	return m
}

func itemLockKey(id string) string      { return "item:" + id }
func accessoryLockKey(id string) string { return "accessory:" + id }

func (m *Machine) Fees() *fees.Calculator { return m.fees }
