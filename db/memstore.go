package db

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"Gin_postgres_redis_lending/models"
)

// MemStore is an in-memory entity store with the same version semantics as
// Repo. Records are copied on the way in and out so callers never share state
// with the store.
type MemStore struct {
	mu           sync.RWMutex
	items        map[string]models.Item
	accessories  map[string]models.Accessory
	transactions map[string]models.Transaction
	now          func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		items:        make(map[string]models.Item),
		accessories:  make(map[string]models.Accessory),
		transactions: make(map[string]models.Transaction),
		now:          time.Now,
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneItem(it models.Item) models.Item {
	it.BorrowerID = clonePtr(it.BorrowerID)
	it.LastBorrowerID = clonePtr(it.LastBorrowerID)
	it.ReplacementValue = clonePtr(it.ReplacementValue)
	it.AvailableSince = clonePtr(it.AvailableSince)
	it.Waitlist = slices.Clone(it.Waitlist)
	return it
}

func cloneAccessory(a models.Accessory) models.Accessory {
	a.BorrowerID = clonePtr(a.BorrowerID)
	a.CurrentItemID = clonePtr(a.CurrentItemID)
	return a
}

func cloneTransaction(t models.Transaction) models.Transaction {
	t.ItemID = clonePtr(t.ItemID)
	t.BorrowerID = clonePtr(t.BorrowerID)
	t.AuthorID = clonePtr(t.AuthorID)
	t.DueDate = clonePtr(t.DueDate)
	t.ReturnDate = clonePtr(t.ReturnDate)
	t.InspectionIssue = clonePtr(t.InspectionIssue)
	t.AmountDue = clonePtr(t.AmountDue)
	t.ChargeType = clonePtr(t.ChargeType)
	t.BorrowedAccessories = slices.Clone(t.BorrowedAccessories)
	return t
}

// put applies the insert-or-compare-and-swap rule shared by every entity kind.
func put[T any](m map[string]T, id string, version *int, row func() T, stored func(T) int) error {
	expected := *version
	cur, exists := m[id]
	switch {
	case expected == 0 && exists:
		return fmt.Errorf("duplicate id %s: %w", id, ErrConflict)
	case expected != 0 && !exists:
		return ErrNotFound
	case expected != 0 && stored(cur) != expected:
		return ErrConflict
	}
	*version = expected + 1
	m[id] = row()
	return nil
}

func (s *MemStore) LoadItem(_ context.Context, id string) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneItem(it)
	return &c, nil
}

func (s *MemStore) SaveItem(_ context.Context, it *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	err := put(s.items, it.ID, &it.Version, func() models.Item {
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		it.UpdatedAt = now
		return cloneItem(*it)
	}, func(cur models.Item) int { return cur.Version })
	if err != nil {
		return fmt.Errorf("save item %s: %w", it.ID, err)
	}
	return nil
}

func (s *MemStore) LoadAccessory(_ context.Context, id string) (*models.Accessory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accessories[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneAccessory(a)
	return &c, nil
}

func (s *MemStore) LoadAccessories(_ context.Context, ids []string) ([]models.Accessory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Accessory
	for _, id := range ids {
		if a, ok := s.accessories[id]; ok {
			out = append(out, cloneAccessory(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) SaveAccessory(_ context.Context, a *models.Accessory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	err := put(s.accessories, a.ID, &a.Version, func() models.Accessory {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		return cloneAccessory(*a)
	}, func(cur models.Accessory) int { return cur.Version })
	if err != nil {
		return fmt.Errorf("save accessory %s: %w", a.ID, err)
	}
	return nil
}

func (s *MemStore) LoadTransaction(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneTransaction(t)
	return &c, nil
}

func (s *MemStore) SaveTransaction(_ context.Context, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	err := put(s.transactions, t.ID, &t.Version, func() models.Transaction {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		return cloneTransaction(*t)
	}, func(cur models.Transaction) int { return cur.Version })
	if err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	return nil
}

func (s *MemStore) FindTransactions(_ context.Context, q TransactionQuery) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, t := range s.transactions {
		if q.ItemID != "" && (t.ItemID == nil || *t.ItemID != q.ItemID) {
			continue
		}
		if q.OpenOnly {
			if !t.IsOpen() {
				continue
			}
		} else if q.Action != "" && t.Action != q.Action {
			continue
		}
		if q.ExcludeID != "" && t.ID == q.ExcludeID {
			continue
		}
		if q.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*q.DueBefore)) {
			continue
		}
		if q.RecordedBy != nil && !q.RecordedBy.Covers(&t) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BorrowDate.Equal(out[j].BorrowDate) {
			return out[i].BorrowDate.After(out[j].BorrowDate)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
