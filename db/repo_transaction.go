package db

import (
	"context"
	"fmt"
	"time"

	"Gin_postgres_redis_lending/models"
)

// TransactionQuery selects transactions by field. Zero values are ignored.
type TransactionQuery struct {
	ItemID    string
	Action    models.Action
	OpenOnly  bool
	ExcludeID string
	DueBefore *time.Time
	// RecordedBy keeps transactions recorded no later than the position.
	RecordedBy *Position
	Limit      int
}

// Position orders transactions by borrow date, then creation time. A zero
// CreatedAt matches every record with the same borrow date.
type Position struct {
	BorrowDate time.Time
	CreatedAt  time.Time
}

// PositionOf returns t's position, or nil when t carries no borrow date.
func PositionOf(t *models.Transaction) *Position {
	if t == nil || t.BorrowDate.IsZero() {
		return nil
	}
	return &Position{BorrowDate: t.BorrowDate, CreatedAt: t.CreatedAt}
}

// Covers reports whether t was recorded no later than p.
func (p *Position) Covers(t *models.Transaction) bool {
	if t.BorrowDate.Before(p.BorrowDate) {
		return true
	}
	if !t.BorrowDate.Equal(p.BorrowDate) {
		return false
	}
	return p.CreatedAt.IsZero() || !t.CreatedAt.After(p.CreatedAt)
}

func (r *Repo) LoadTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return first[models.Transaction](ctx, r.DB, id)
}

func (r *Repo) SaveTransaction(ctx context.Context, t *models.Transaction) error {
	if err := saveVersioned(ctx, r.DB, t, &t.Version); err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	return nil
}

func (r *Repo) FindTransactions(ctx context.Context, q TransactionQuery) ([]models.Transaction, error) {
	tx := r.DB.WithContext(ctx).Model(&models.Transaction{}).Order("borrow_date DESC, id")
	if q.ItemID != "" {
		tx = tx.Where("item_id = ?", q.ItemID)
	}
	if q.OpenOnly {
		tx = tx.Where("action = ? AND closed = ? AND return_date IS NULL", models.ActionWithdraw, false)
	} else if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	if q.ExcludeID != "" {
		tx = tx.Where("id <> ?", q.ExcludeID)
	}
	if q.DueBefore != nil {
		tx = tx.Where("due_date IS NOT NULL AND due_date < ?", *q.DueBefore)
	}
	if p := q.RecordedBy; p != nil {
		if p.CreatedAt.IsZero() {
			tx = tx.Where("borrow_date <= ?", p.BorrowDate)
		} else {
			tx = tx.Where("(borrow_date < ? OR (borrow_date = ? AND created_at <= ?))", p.BorrowDate, p.BorrowDate, p.CreatedAt)
		}
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var ts []models.Transaction
	if err := tx.Find(&ts).Error; err != nil {
		return nil, err
	}
	return ts, nil
}
