package db

import (
	"context"
	"sort"
	"strings"

	"Gin_postgres_redis_lending/models"
)

// ListItemsWithOpenLoan mirrors Repo.ListItemsWithOpenLoan over the maps.
func (s *MemStore) ListItemsWithOpenLoan(_ context.Context, q ItemsQuery) (*PagedItems, error) {
	offset := q.normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()

	newest := make(map[string]models.Transaction)
	for _, t := range s.transactions {
		if !t.IsOpen() || t.ItemID == nil {
			continue
		}
		if cur, ok := newest[*t.ItemID]; !ok || t.BorrowDate.After(cur.BorrowDate) {
			newest[*t.ItemID] = t
		}
	}

	needle := strings.ToLower(strings.TrimSpace(q.Q))
	var items []models.Item
	for _, it := range s.items {
		if needle != "" && !strings.Contains(strings.ToLower(it.Serial), needle) && !strings.Contains(strings.ToLower(it.Name), needle) {
			continue
		}
		loan, hasLoan := newest[it.ID]
		overdue := hasLoan && loan.DueDate != nil && loan.DueDate.Before(now)
		switch q.Status {
		case "borrowed":
			if it.Status != models.ItemBorrowed {
				continue
			}
		case "available":
			if it.Status != models.ItemAvailable {
				continue
			}
		case "overdue":
			if !overdue {
				continue
			}
		case "off_cycle":
			if it.Status != models.ItemRepair && it.Status != models.ItemMissing {
				continue
			}
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	page := &PagedItems{Total: int64(len(items)), Items: []ItemRow{}}
	for i := offset; i < len(items) && i < offset+q.Size; i++ {
		it := cloneItem(items[i])
		row := ItemRow{
			ID: it.ID, Serial: it.Serial, Name: it.Name, Kind: it.Kind, Status: string(it.Status),
			BorrowerID: it.BorrowerID, AvailableSince: it.AvailableSince,
		}
		if loan, ok := newest[it.ID]; ok {
			id, borrowed := loan.ID, loan.BorrowDate
			row.TransactionID = &id
			row.BorrowDate = &borrowed
			row.DueDate = clonePtr(loan.DueDate)
			row.Overdue = loan.DueDate != nil && loan.DueDate.Before(now)
		}
		page.Items = append(page.Items, row)
	}
	return page, nil
}
