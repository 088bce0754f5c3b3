package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const ItemTable = "lsb_items"

type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemBorrowed  ItemStatus = "borrowed"
	ItemRepair    ItemStatus = "repair"
	ItemMissing   ItemStatus = "missing"
	ItemRetired   ItemStatus = "retired"
)

// Only loanable items take part in the lending cycle; the rest are tracked
// for inventory but ignored by the state machine.
const (
	KindLoanable   = "loanable"
	KindConsumable = "consumable"
	KindFixture    = "fixture"
)

type Item struct {
	ID     string     `gorm:"type:uuid;primaryKey" json:"id"`
	Serial string     `gorm:"size:120;uniqueIndex;not null" json:"serial"`
	Name   string     `gorm:"size:200;not null" json:"name"`
	Kind   string     `gorm:"size:20;not null;default:'loanable'" json:"kind"`
	Status ItemStatus `gorm:"size:20;not null;default:'available'" json:"status"`

	// BorrowerID is set iff Status is borrowed.
	BorrowerID *string `gorm:"type:uuid;index" json:"borrowerId,omitempty"`
	// LastBorrowerID keeps the person of record after BorrowerID is cleared
	// (e.g. an item reported missing mid-loan).
	LastBorrowerID *string `gorm:"type:uuid" json:"lastBorrowerId,omitempty"`

	ReplacementValue *decimal.Decimal `gorm:"type:numeric(12,2)" json:"replacementValue,omitempty"`
	BatteryPowered   bool             `gorm:"not null;default:false" json:"batteryPowered"`
	Waitlist         []string         `gorm:"serializer:json" json:"waitlist"`
	AvailableSince   *time.Time       `json:"availableSince,omitempty"`

	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Item) TableName() string { return ItemTable }

func (it *Item) IsLendable() bool { return it.Kind == KindLoanable }

// RemoveFromWaitlist drops the first entry matching borrowerID.
func (it *Item) RemoveFromWaitlist(borrowerID string) bool {
	for i, w := range it.Waitlist {
		if w == borrowerID {
			it.Waitlist = append(it.Waitlist[:i:i], it.Waitlist[i+1:]...)
			return true
		}
	}
	return false
}

// ClearBorrower moves the current borrower to LastBorrowerID.
func (it *Item) ClearBorrower() {
	if it.BorrowerID != nil {
		prev := *it.BorrowerID
		it.LastBorrowerID = &prev
	}
	it.BorrowerID = nil
}
