package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const TransactionTable = "lsb_transactions"

type Action string

const (
	ActionWithdraw Action = "withdraw"
	ActionReturn   Action = "return"
	ActionIssue    Action = "issue"
)

type InspectionIssue string

const (
	IssueNone    InspectionIssue = "none"
	IssueDamage  InspectionIssue = "damage"
	IssueMissing InspectionIssue = "missing"
	IssueOther   InspectionIssue = "other"
)

type ChargeType string

const (
	ChargePerUse    ChargeType = "per_use"
	ChargeLateFee   ChargeType = "late_fee"
	ChargeNonReturn ChargeType = "non_return"
)

// Transaction records one loan event. Once saved only the state machine and
// the fee flows touch it: closing stale withdrawals and recording charges.
type Transaction struct {
	ID     string  `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID *string `gorm:"type:uuid;index" json:"itemId,omitempty"`
	Action Action  `gorm:"size:20;index" json:"action"`

	BorrowerID *string `gorm:"type:uuid;index" json:"borrowerId,omitempty"`
	AuthorID   *string `gorm:"type:uuid" json:"authorId,omitempty"`

	BorrowDate time.Time  `gorm:"index;not null" json:"borrowDate"`
	DueDate    *time.Time `gorm:"index" json:"dueDate,omitempty"`
	ReturnDate *time.Time `gorm:"index" json:"returnDate,omitempty"`

	InspectionIssue *InspectionIssue `gorm:"size:20" json:"inspectionIssue,omitempty"`
	Closed          bool             `gorm:"not null;default:false" json:"closed"`

	AmountDue  *decimal.Decimal `gorm:"type:numeric(12,2)" json:"amountDue,omitempty"`
	ChargeType *ChargeType      `gorm:"size:20" json:"chargeType,omitempty"`

	BorrowedAccessories []string `gorm:"serializer:json" json:"borrowedAccessories,omitempty"`

	AutoReturn bool   `gorm:"not null;default:false" json:"autoReturn"`
	Note       string `gorm:"size:255" json:"note,omitempty"`

	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Transaction) TableName() string { return TransactionTable }

// EffectiveBorrower is the borrower, falling back to the author.
func (t *Transaction) EffectiveBorrower() *string {
	if t.BorrowerID != nil && *t.BorrowerID != "" {
		return t.BorrowerID
	}
	if t.AuthorID != nil && *t.AuthorID != "" {
		return t.AuthorID
	}
	return nil
}

// IsOpen reports an open loan: a withdraw that is neither closed nor returned.
func (t *Transaction) IsOpen() bool {
	return t.Action == ActionWithdraw && !t.Closed && t.ReturnDate == nil
}

func (t *Transaction) Issue() InspectionIssue {
	if t.InspectionIssue == nil || *t.InspectionIssue == "" {
		return IssueNone
	}
	return *t.InspectionIssue
}

func (t *Transaction) HasCharge(ct ChargeType) bool {
	return t.AmountDue != nil && t.ChargeType != nil && *t.ChargeType == ct
}
