package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"Gin_postgres_redis_lending/fees"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotChargeable        = errors.New("transaction is not an item withdrawal")
	ErrAlreadyReturned      = errors.New("loan already returned")
	ErrNotApplicable        = errors.New("non-return charge not applicable")
	ErrAccessoryNotBorrowed = errors.New("accessory is not borrowed")
)

// ChargeOutcome is the result of ProcessNonReturnCharge. Applied is false when
// the transaction had already been charged.
type ChargeOutcome struct {
	Transaction  *models.Transaction `json:"transaction"`
	Amount       decimal.Decimal     `json:"amount"`
	Applied      bool                `json:"applied"`
	ManualReview bool                `json:"manualReview"`
}

// ProcessNonReturnCharge bills an overdue withdrawal as presumed lost: pct%
// of the item's replacement value plus any accessories still out with it.
// A nil pct uses the configured percentage. The transaction is closed; the
// item status is left to the inspection flow.
func (m *Machine) ProcessNonReturnCharge(ctx context.Context, txID string, pct *decimal.Decimal) (ChargeOutcome, error) {
	ctx, span := m.tracer.Start(ctx, "inventory.ProcessNonReturnCharge",
		trace.WithAttributes(attribute.String("lending.transaction_id", txID)))
	defer span.End()

	res, err := m.processNonReturnCharge(ctx, txID, pct)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Bool("lending.applied", res.Applied))
	return res, err
}

func (m *Machine) processNonReturnCharge(ctx context.Context, txID string, pct *decimal.Decimal) (ChargeOutcome, error) {
	tx, err := m.store.LoadTransaction(ctx, txID)
	if err != nil {
		return ChargeOutcome{}, fmt.Errorf("load transaction %s: %w", txID, err)
	}
	if tx.Action != models.ActionWithdraw || tx.ItemID == nil {
		return ChargeOutcome{Transaction: tx}, ErrNotChargeable
	}

	release, err := m.locker.Lock(ctx, itemLockKey(*tx.ItemID))
	if err != nil {
		return ChargeOutcome{Transaction: tx}, fmt.Errorf("lock item %s: %w", *tx.ItemID, err)
	}
	defer release()

	// Reload under the lock; a concurrent run may have charged it already.
	if tx, err = m.store.LoadTransaction(ctx, txID); err != nil {
		return ChargeOutcome{}, fmt.Errorf("load transaction %s: %w", txID, err)
	}
	if tx.HasCharge(models.ChargeNonReturn) {
		m.log.InfoContext(ctx, "non-return charge already recorded", slog.String("transaction", tx.ID))
		return ChargeOutcome{Transaction: tx, Amount: *tx.AmountDue}, nil
	}
	if tx.ReturnDate != nil {
		return ChargeOutcome{Transaction: tx}, ErrAlreadyReturned
	}

	item, err := m.store.LoadItem(ctx, *tx.ItemID)
	if err != nil {
		return ChargeOutcome{Transaction: tx}, fmt.Errorf("load item %s: %w", *tx.ItemID, err)
	}
	accs, err := m.store.LoadAccessories(ctx, tx.BorrowedAccessories)
	if err != nil {
		return ChargeOutcome{Transaction: tx}, fmt.Errorf("load accessories: %w", err)
	}

	percentage := m.fees.NonReturnPercentage()
	if pct != nil {
		percentage = *pct
	}
	amount, ok := fees.NonReturnCharge(tx, item, accs, percentage)
	if !ok {
		return ChargeOutcome{Transaction: tx}, ErrNotApplicable
	}

	ct := models.ChargeNonReturn
	tx.AmountDue, tx.ChargeType = &amount, &ct
	tx.Closed = true
	tx.Note = "presumed lost: non-return charge " + amount.StringFixed(2)
	if err := m.store.SaveTransaction(ctx, tx); err != nil {
		return ChargeOutcome{Transaction: tx}, err
	}

	review := m.fees.NeedsManualReview(amount)
	key := notify.KeyNonReturnCharge
	if review {
		key = notify.KeyManualPaymentReview
	}
	m.notifier.SendByKey(ctx, tx, key, map[string]any{
		"amount":     amount.StringFixed(2),
		"percentage": percentage.String(),
		"chargeType": string(ct),
	})
	m.log.InfoContext(ctx, "non-return charge recorded",
		slog.String("transaction", tx.ID),
		slog.String("item", item.ID),
		slog.String("amount", amount.StringFixed(2)),
		slog.Bool("manualReview", review))

	return ChargeOutcome{Transaction: tx, Amount: amount, Applied: true, ManualReview: review}, nil
}

// ReturnAccessory handles an accessory brought back on its own. A missing
// accessory keeps its borrower and item so the loss stays attributable.
func (m *Machine) ReturnAccessory(ctx context.Context, id string, missing bool) (*models.Accessory, error) {
	release, err := m.locker.Lock(ctx, accessoryLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock accessory %s: %w", id, err)
	}
	defer release()

	a, err := m.store.LoadAccessory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load accessory %s: %w", id, err)
	}
	if a.Status != models.AccessoryBorrowed {
		return a, ErrAccessoryNotBorrowed
	}

	itemID := ""
	if a.CurrentItemID != nil {
		itemID = *a.CurrentItemID
	}
	if missing {
		a.Status = models.AccessoryMissing
		a.Note = "reported missing from item " + itemID
	} else {
		a.Status = models.AccessoryAvailable
		a.BorrowerID = nil
		a.CurrentItemID = nil
		a.Note = "returned directly"
	}
	if err := m.store.SaveAccessory(ctx, a); err != nil {
		return a, err
	}

	m.notifier.SendByKey(ctx, nil, notify.KeyAccessoryReturned, map[string]any{
		"accessoryId": a.ID,
		"itemId":      itemID,
		"status":      string(a.Status),
	})
	return a, nil
}
