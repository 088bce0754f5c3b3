package db

import (
	"context"
	"strings"
	"time"

	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm"
)

type ItemRow struct {
	ID             string     `json:"id"`
	Serial         string     `json:"serial"`
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	BorrowerID     *string    `json:"borrowerId,omitempty"`
	AvailableSince *time.Time `json:"availableSince,omitempty"`

	// Current open withdraw (nullable)
	TransactionID *string    `json:"transactionId,omitempty"`
	BorrowDate    *time.Time `json:"borrowDate,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	Overdue       bool       `json:"overdue"`
}

type ItemsQuery struct {
	Q      string // serial/name substring
	Status string // "", "borrowed", "available", "overdue", "off_cycle"
	Page   int
	Size   int
}

// normalize clamps paging and returns the row offset.
func (q *ItemsQuery) normalize() int {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	return (q.Page - 1) * q.Size
}

type PagedItems struct {
	Total int64     `json:"total"`
	Items []ItemRow `json:"items"`
}

// ListItemsWithOpenLoan joins every item with its newest open withdraw.
// Postgres only (DISTINCT ON).
func (r *Repo) ListItemsWithOpenLoan(ctx context.Context, q ItemsQuery) (*PagedItems, error) {
	offset := q.normalize()

	db := r.DB.WithContext(ctx)

	sub := db.
		Table(models.TransactionTable+" t").
		Select(`
			DISTINCT ON (t.item_id)
			t.id, t.item_id, t.borrow_date, t.due_date
		`).
		Where("t.action = ? AND t.closed = FALSE AND t.return_date IS NULL", models.ActionWithdraw).
		Order("t.item_id, t.borrow_date DESC")

	filtered := func() *gorm.DB {
		qry := db.
			Table(models.ItemTable+" i").
			Joins("LEFT JOIN (?) AS ol ON ol.item_id = i.id", sub)

		if s := strings.TrimSpace(q.Q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			qry = qry.Where("LOWER(i.serial) LIKE ? OR LOWER(i.name) LIKE ?", pat, pat)
		}
		switch q.Status {
		case "borrowed":
			qry = qry.Where("i.status = ?", models.ItemBorrowed)
		case "available":
			qry = qry.Where("i.status = ?", models.ItemAvailable)
		case "overdue":
			qry = qry.Where("ol.due_date IS NOT NULL AND ol.due_date < NOW()")
		case "off_cycle":
			qry = qry.Where("i.status IN ?", []models.ItemStatus{models.ItemRepair, models.ItemMissing})
		}
		return qry
	}

	var total int64
	if err := filtered().Select("i.id").Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []ItemRow
	if err := filtered().
		Select(`
			i.id, i.serial, i.name, i.kind, i.status, i.borrower_id, i.available_since,
			ol.id AS transaction_id,
			ol.borrow_date,
			ol.due_date,
			CASE WHEN ol.due_date IS NOT NULL AND ol.due_date < NOW() THEN TRUE ELSE FALSE END AS overdue
		`).
		Order("i.created_at DESC").
		Offset(offset).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return &PagedItems{Total: total, Items: rows}, nil
}
