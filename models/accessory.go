package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const AccessoryTable = "lsb_accessories"

type AccessoryStatus string

const (
	AccessoryAvailable AccessoryStatus = "available"
	AccessoryBorrowed  AccessoryStatus = "borrowed"
	AccessoryMissing   AccessoryStatus = "missing"
)

// Accessory is a detachable part (battery, charger) that travels with one item
// at a time.
type Accessory struct {
	ID     string          `gorm:"type:uuid;primaryKey" json:"id"`
	Label  string          `gorm:"size:120;not null" json:"label"`
	Status AccessoryStatus `gorm:"size:20;not null;default:'available'" json:"status"`

	BorrowerID    *string `gorm:"type:uuid;index" json:"borrowerId,omitempty"`
	CurrentItemID *string `gorm:"type:uuid;index" json:"currentItemId,omitempty"`

	ReplacementValue decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"replacementValue"`
	Note             string          `gorm:"size:255" json:"note,omitempty"`

	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Accessory) TableName() string { return AccessoryTable }

// OutWith reports whether the accessory is still lent out together with itemID.
func (a *Accessory) OutWith(itemID string) bool {
	return a.Status == AccessoryBorrowed && a.CurrentItemID != nil && *a.CurrentItemID == itemID
}
