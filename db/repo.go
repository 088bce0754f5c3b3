package db

import (
	"context"
	"errors"
	"fmt"

	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a save carries a stale version.
	ErrConflict = errors.New("concurrency conflict: version mismatch")
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// saveVersioned inserts rows with version 0 and otherwise updates the row only
// while the stored version still matches, bumping it by one.
func saveVersioned[T any](ctx context.Context, db *gorm.DB, row *T, version *int) error {
	expected := *version
	*version = expected + 1

	if expected == 0 {
		if err := db.WithContext(ctx).Create(row).Error; err != nil {
			*version = expected
			return err
		}
		return nil
	}

	res := db.WithContext(ctx).Model(row).
		Where("version = ?", expected).
		Select("*").
		Updates(row)
	if res.Error != nil {
		*version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		*version = expected
		return ErrConflict
	}
	return nil
}

func first[T any](ctx context.Context, db *gorm.DB, id string) (*T, error) {
	var row T
	if err := db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// Items

func (r *Repo) LoadItem(ctx context.Context, id string) (*models.Item, error) {
	return first[models.Item](ctx, r.DB, id)
}

func (r *Repo) SaveItem(ctx context.Context, it *models.Item) error {
	if err := saveVersioned(ctx, r.DB, it, &it.Version); err != nil {
		return fmt.Errorf("save item %s: %w", it.ID, err)
	}
	return nil
}

// Accessories

func (r *Repo) LoadAccessory(ctx context.Context, id string) (*models.Accessory, error) {
	return first[models.Accessory](ctx, r.DB, id)
}

func (r *Repo) LoadAccessories(ctx context.Context, ids []string) ([]models.Accessory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var as []models.Accessory
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&as).Error; err != nil {
		return nil, err
	}
	return as, nil
}

func (r *Repo) SaveAccessory(ctx context.Context, a *models.Accessory) error {
	if err := saveVersioned(ctx, r.DB, a, &a.Version); err != nil {
		return fmt.Errorf("save accessory %s: %w", a.ID, err)
	}
	return nil
}
