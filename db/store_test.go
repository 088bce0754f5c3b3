package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"Gin_postgres_redis_lending/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type store interface {
	LoadItem(ctx context.Context, id string) (*models.Item, error)
	SaveItem(ctx context.Context, it *models.Item) error
	LoadAccessory(ctx context.Context, id string) (*models.Accessory, error)
	LoadAccessories(ctx context.Context, ids []string) ([]models.Accessory, error)
	SaveAccessory(ctx context.Context, a *models.Accessory) error
	LoadTransaction(ctx context.Context, id string) (*models.Transaction, error)
	SaveTransaction(ctx context.Context, t *models.Transaction) error
	FindTransactions(ctx context.Context, q TransactionQuery) ([]models.Transaction, error)
}

func newSQLiteRepo(t *testing.T) *Repo {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "lending.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRepo(conn)
}

func stores(t *testing.T) map[string]store {
	return map[string]store{
		"memstore": NewMemStore(),
		"sqlite":   newSQLiteRepo(t),
	}
}

func strp(s string) *string { return &s }

var base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func TestStore_ItemVersioning(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			v := decimal.RequireFromString("250.5")
			it := &models.Item{
				ID: "item-a", Serial: "SN-A", Name: "Drill", Kind: models.KindLoanable,
				Status: models.ItemAvailable, ReplacementValue: &v,
				Waitlist: []string{"user-b", "user-c"},
			}
			require.NoError(t, s.SaveItem(ctx, it))
			assert.Equal(t, 1, it.Version)

			stale, err := s.LoadItem(ctx, "item-a")
			require.NoError(t, err)
			assert.Equal(t, []string{"user-b", "user-c"}, stale.Waitlist)
			assert.True(t, stale.ReplacementValue.Equal(v))

			it.Status = models.ItemBorrowed
			it.BorrowerID = strp("user-b")
			require.NoError(t, s.SaveItem(ctx, it))
			assert.Equal(t, 2, it.Version)

			stale.Status = models.ItemRepair
			err = s.SaveItem(ctx, stale)
			assert.ErrorIs(t, err, ErrConflict)
			assert.Equal(t, 1, stale.Version, "version restored after conflict")

			got, err := s.LoadItem(ctx, "item-a")
			require.NoError(t, err)
			assert.Equal(t, models.ItemBorrowed, got.Status)
			assert.Equal(t, "user-b", *got.BorrowerID)

			_, err = s.LoadItem(ctx, "item-none")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Accessories(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"acc-b", "acc-a", "acc-c"} {
				require.NoError(t, s.SaveAccessory(ctx, &models.Accessory{
					ID: id, Label: id, Status: models.AccessoryAvailable, ReplacementValue: decimal.NewFromInt(10),
				}))
			}

			got, err := s.LoadAccessories(ctx, []string{"acc-b", "acc-zz", "acc-a"})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "acc-a", got[0].ID)
			assert.Equal(t, "acc-b", got[1].ID)

			none, err := s.LoadAccessories(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, none)

			a, err := s.LoadAccessory(ctx, "acc-c")
			require.NoError(t, err)
			a.Status = models.AccessoryBorrowed
			a.BorrowerID = strp("user-a")
			a.CurrentItemID = strp("item-a")
			require.NoError(t, s.SaveAccessory(ctx, a))

			a, err = s.LoadAccessory(ctx, "acc-c")
			require.NoError(t, err)
			assert.True(t, a.OutWith("item-a"))

			_, err = s.LoadAccessory(ctx, "acc-none")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_FindTransactions(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			due := func(days int) *time.Time { d := base.AddDate(0, 0, days); return &d }
			returned := base.Add(time.Hour)
			txs := []*models.Transaction{
				{ID: "tx-old", ItemID: strp("item-a"), Action: models.ActionWithdraw, BorrowDate: base, DueDate: due(1)},
				{ID: "tx-new", ItemID: strp("item-a"), Action: models.ActionWithdraw, BorrowDate: base.Add(2 * time.Hour), DueDate: due(10)},
				{ID: "tx-done", ItemID: strp("item-a"), Action: models.ActionWithdraw, BorrowDate: base.Add(-time.Hour), ReturnDate: &returned},
				{ID: "tx-ret", ItemID: strp("item-a"), Action: models.ActionReturn, BorrowDate: base.Add(time.Hour), ReturnDate: &returned, Closed: true},
				{ID: "tx-other", ItemID: strp("item-b"), Action: models.ActionWithdraw, BorrowDate: base, DueDate: due(2)},
			}
			for _, tx := range txs {
				require.NoError(t, s.SaveTransaction(ctx, tx))
			}

			ids := func(ts []models.Transaction) []string {
				out := make([]string, len(ts))
				for i, tx := range ts {
					out[i] = tx.ID
				}
				return out
			}

			open, err := s.FindTransactions(ctx, TransactionQuery{ItemID: "item-a", OpenOnly: true})
			require.NoError(t, err)
			assert.Equal(t, []string{"tx-new", "tx-old"}, ids(open))

			open, err = s.FindTransactions(ctx, TransactionQuery{ItemID: "item-a", OpenOnly: true, ExcludeID: "tx-new"})
			require.NoError(t, err)
			assert.Equal(t, []string{"tx-old"}, ids(open))

			rets, err := s.FindTransactions(ctx, TransactionQuery{ItemID: "item-a", Action: models.ActionReturn})
			require.NoError(t, err)
			assert.Equal(t, []string{"tx-ret"}, ids(rets))

			overdue, err := s.FindTransactions(ctx, TransactionQuery{OpenOnly: true, DueBefore: due(5)})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"tx-old", "tx-other"}, ids(overdue))

			byOld, err := s.FindTransactions(ctx, TransactionQuery{ItemID: "item-a", OpenOnly: true, RecordedBy: PositionOf(txs[0])})
			require.NoError(t, err)
			assert.Equal(t, []string{"tx-old"}, ids(byOld), "later withdrawals are not covered")

			byNew, err := s.FindTransactions(ctx, TransactionQuery{ItemID: "item-a", OpenOnly: true, RecordedBy: &Position{BorrowDate: base.Add(2 * time.Hour)}})
			require.NoError(t, err)
			assert.Equal(t, []string{"tx-new", "tx-old"}, ids(byNew))

			limited, err := s.FindTransactions(ctx, TransactionQuery{ItemID: "item-a", Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"tx-new", "tx-ret"}, ids(limited))

			stale, err := s.LoadTransaction(ctx, "tx-old")
			require.NoError(t, err)
			fresh, err := s.LoadTransaction(ctx, "tx-old")
			require.NoError(t, err)
			fresh.Closed = true
			require.NoError(t, s.SaveTransaction(ctx, fresh))
			stale.Note = "late edit"
			assert.ErrorIs(t, s.SaveTransaction(ctx, stale), ErrConflict)
		})
	}
}

func TestMemStore_CopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	it := &models.Item{ID: "item-a", Waitlist: []string{"user-a"}}
	require.NoError(t, s.SaveItem(ctx, it))

	it.Waitlist[0] = "mutated"
	got, err := s.LoadItem(ctx, "item-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a"}, got.Waitlist)

	got.Waitlist[0] = "mutated again"
	again, err := s.LoadItem(ctx, "item-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a"}, again.Waitlist)
}

func TestMemStore_DuplicateInsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.SaveTransaction(ctx, &models.Transaction{ID: "tx-a"}))

	err := s.SaveTransaction(ctx, &models.Transaction{ID: "tx-a"})
	assert.ErrorIs(t, err, ErrConflict)

	err = s.SaveTransaction(ctx, &models.Transaction{ID: "tx-b", Version: 3})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_ListItemsWithOpenLoan(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.now = func() time.Time { return base.AddDate(0, 0, 5) }

	for i, id := range []string{"item-a", "item-b", "item-c"} {
		it := &models.Item{ID: id, Serial: "SN-" + id, Name: "Saw " + id, Kind: models.KindLoanable, Status: models.ItemAvailable,
			CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if id == "item-c" {
			it.Status = models.ItemRepair
		}
		require.NoError(t, s.SaveItem(ctx, it))
	}
	due := base.AddDate(0, 0, 1)
	require.NoError(t, s.SaveTransaction(ctx, &models.Transaction{
		ID: "tx-a", ItemID: strp("item-a"), Action: models.ActionWithdraw, BorrowDate: base, DueDate: &due,
	}))

	all, err := s.ListItemsWithOpenLoan(ctx, ItemsQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)
	require.Len(t, all.Items, 3)
	assert.Equal(t, "item-c", all.Items[0].ID, "newest first")
	assert.Equal(t, "item-a", all.Items[2].ID)
	require.NotNil(t, all.Items[2].TransactionID)
	assert.Equal(t, "tx-a", *all.Items[2].TransactionID)
	assert.True(t, all.Items[2].Overdue)

	overdue, err := s.ListItemsWithOpenLoan(ctx, ItemsQuery{Status: "overdue"})
	require.NoError(t, err)
	require.Len(t, overdue.Items, 1)
	assert.Equal(t, "item-a", overdue.Items[0].ID)

	offCycle, err := s.ListItemsWithOpenLoan(ctx, ItemsQuery{Status: "off_cycle"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, offCycle.Total)

	paged, err := s.ListItemsWithOpenLoan(ctx, ItemsQuery{Q: "saw", Page: 2, Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, paged.Total)
	require.Len(t, paged.Items, 1)
	assert.Equal(t, "item-a", paged.Items[0].ID)
}
