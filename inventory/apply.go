package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Apply runs the state transition for a transaction that has just been saved.
// It never fails: unmet preconditions are skipped, and failed entity saves are
// logged and listed on the Outcome while the rest of the cascade proceeds.
// Callers must invoke it at most once per saved withdraw.
func (m *Machine) Apply(ctx context.Context, tx *models.Transaction) Outcome {
	var out Outcome
	if tx == nil || tx.ItemID == nil || *tx.ItemID == "" || tx.Action == "" {
		out.skip(SkipMissingFields)
		return out
	}
	out.TransactionID, out.ItemID = tx.ID, *tx.ItemID

	ctx, span := m.tracer.Start(ctx, "inventory.Apply", trace.WithAttributes(
		attribute.String("lending.transaction_id", tx.ID),
		attribute.String("lending.item_id", out.ItemID),
		attribute.String("lending.action", string(tx.Action)),
	))
	defer span.End()

	release, err := m.locker.Lock(ctx, itemLockKey(out.ItemID))
	if err != nil {
		m.log.WarnContext(ctx, "item lock not acquired",
			slog.String("item", out.ItemID), slog.String("transaction", tx.ID), slog.Any("err", err))
		span.RecordError(err)
		out.skip(SkipLocked)
		return out
	}
	defer release()

	m.apply(ctx, tx, &out)

	span.SetAttributes(attribute.Bool("lending.applied", out.Applied))
	if out.Skipped != "" {
		span.SetAttributes(attribute.String("lending.skipped", out.Skipped))
	}
	if out.AutoReturnID != "" {
		span.SetAttributes(attribute.String("lending.auto_return_id", out.AutoReturnID))
	}
	if out.Partial() {
		span.SetStatus(codes.Error, "partial cascade")
	}
	return out
}

func (m *Machine) apply(ctx context.Context, tx *models.Transaction, out *Outcome) {
	item, err := m.store.LoadItem(ctx, *tx.ItemID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		m.log.DebugContext(ctx, "transaction for unknown item", slog.String("item", *tx.ItemID), slog.String("transaction", tx.ID))
		out.skip(SkipUnknownItem)
		return
	case err != nil:
		m.fail(ctx, out, "item", *tx.ItemID, "load", err)
		out.skip(SkipLoadFailed)
		return
	}
	if !item.IsLendable() {
		m.log.DebugContext(ctx, "transaction for non-lendable item", slog.String("item", item.ID), slog.String("kind", item.Kind))
		out.skip(SkipNotLendable)
		return
	}

	switch tx.Action {
	case models.ActionWithdraw:
		if m.superseded(ctx, tx) {
			out.skip(SkipSuperseded)
			return
		}
		m.withdraw(ctx, tx, item, 0, out)
	case models.ActionReturn:
		m.returnItem(ctx, tx, item, nil, out)
	case models.ActionIssue:
		m.issue(ctx, tx, item, out)
	default:
		m.log.DebugContext(ctx, "unknown transaction action", slog.String("action", string(tx.Action)))
		out.skip(SkipUnknownAction)
	}
}

// superseded reports whether a later withdrawal applied first has already
// closed tx.
func (m *Machine) superseded(ctx context.Context, tx *models.Transaction) bool {
	stored, err := m.store.LoadTransaction(ctx, tx.ID)
	if err != nil || !stored.Closed {
		return false
	}
	m.log.InfoContext(ctx, "withdrawal closed before it was applied",
		slog.String("transaction", tx.ID), slog.String("item", *tx.ItemID))
	return true
}

// statusForIssue maps an inspection result onto the item status it implies.
func statusForIssue(issue models.InspectionIssue) (models.ItemStatus, bool) {
	switch issue {
	case models.IssueNone:
		return models.ItemAvailable, true
	case models.IssueDamage, models.IssueOther:
		return models.ItemRepair, true
	case models.IssueMissing:
		return models.ItemMissing, true
	}
	return "", false
}

func (m *Machine) withdraw(ctx context.Context, tx *models.Transaction, item *models.Item, depth int, out *Outcome) {
	if item.Status == models.ItemBorrowed && item.BorrowerID != nil {
		m.autoReturn(ctx, tx, item, depth+1, out)
		fresh, err := m.store.LoadItem(ctx, item.ID)
		if err != nil {
			m.fail(ctx, out, "item", item.ID, "reload after auto-return", err)
		} else {
			item = fresh
		}
	}
	// Covers withdrawals left open while the item was not marked borrowed.
	m.closeOpen(ctx, item.ID, tx.ID, db.PositionOf(tx), m.now(), out)

	borrower := tx.EffectiveBorrower()
	if borrower == nil {
		m.log.DebugContext(ctx, "withdraw without borrower", slog.String("transaction", tx.ID))
		out.skip(SkipNoBorrower)
		return
	}
	who := *borrower

	item.RemoveFromWaitlist(who)
	item.Status = models.ItemBorrowed
	item.BorrowerID = &who
	item.AvailableSince = nil
	m.saveItem(ctx, item, "withdraw: borrowed by "+who, out)

	m.lendAccessories(ctx, tx, item.ID, who, out)
	m.recordPerUseFee(ctx, tx, item, out)

	extra := map[string]any{"itemId": item.ID}
	if tx.DueDate != nil {
		extra["dueDate"] = tx.DueDate.Format(time.RFC3339)
	}
	m.notifier.SendByKey(ctx, tx, notify.KeyWithdrawReceipt, extra)
}

// autoReturn closes the previous borrower's loan before a re-withdrawal.
// It goes straight into the return handler; depth keeps it to one hop.
func (m *Machine) autoReturn(ctx context.Context, trigger *models.Transaction, item *models.Item, depth int, out *Outcome) {
	if depth > maxCascadeDepth {
		m.fail(ctx, out, "transaction", trigger.ID, "auto-return", ErrCascadeDepth)
		return
	}
	prior := *item.BorrowerID
	itemID := item.ID
	now := m.now()
	ret := &models.Transaction{
		ID:         m.newID(),
		ItemID:     &itemID,
		Action:     models.ActionReturn,
		BorrowerID: &prior,
		BorrowDate: now,
		ReturnDate: &now,
		Closed:     true,
		AutoReturn: true,
		Note:       "automatic return: item re-withdrawn by transaction " + trigger.ID,
	}
	if err := m.store.SaveTransaction(ctx, ret); err != nil {
		m.fail(ctx, out, "transaction", ret.ID, "create auto-return for "+prior, err)
		return
	}
	out.AutoReturnID = ret.ID
	m.log.InfoContext(ctx, "auto-returned item on re-withdrawal",
		slog.String("item", itemID),
		slog.String("previousBorrower", prior),
		slog.String("autoReturn", ret.ID),
		slog.String("trigger", trigger.ID))

	m.notifier.SendByKey(ctx, ret, notify.KeyAutoReturn, map[string]any{"itemId": itemID, "triggeredBy": trigger.ID})
	m.returnItem(ctx, ret, item, trigger, out)
}

// returnItem ends the loan on item. trigger is the withdrawal behind an
// auto-return, nil for a manual return. Only withdrawals recorded no later
// than trigger (or ret) are closed; trigger itself stays open.
func (m *Machine) returnItem(ctx context.Context, ret *models.Transaction, item *models.Item, trigger *models.Transaction, out *Outcome) {
	status, ok := statusForIssue(ret.Issue())
	if !ok {
		status = models.ItemAvailable
	}
	now := m.now()

	item.Status = status
	item.ClearBorrower()
	if status == models.ItemAvailable {
		item.AvailableSince = &now
	}
	m.saveItem(ctx, item, "return: status "+string(status), out)

	at := now
	if ret.ReturnDate != nil {
		at = *ret.ReturnDate
	}
	keep, by := "", db.PositionOf(ret)
	if trigger != nil {
		keep, by = trigger.ID, db.PositionOf(trigger)
	}
	m.closeOpen(ctx, item.ID, keep, by, at, out)

	if !ret.AutoReturn {
		m.notifier.SendByKey(ctx, ret, notify.KeyReturnReceipt, map[string]any{"itemId": item.ID, "status": string(status)})
	}
	m.notifyCondition(ctx, ret, item)
}

func (m *Machine) issue(ctx context.Context, tx *models.Transaction, item *models.Item, out *Outcome) {
	if tx.InspectionIssue == nil || *tx.InspectionIssue == "" {
		m.log.DebugContext(ctx, "issue report without inspection result", slog.String("transaction", tx.ID))
		out.skip(SkipNoIssue)
		return
	}
	status, ok := statusForIssue(*tx.InspectionIssue)
	if !ok {
		m.log.DebugContext(ctx, "unmapped inspection result",
			slog.String("transaction", tx.ID), slog.String("issue", string(*tx.InspectionIssue)))
		out.skip(SkipNoIssue)
		return
	}

	prev := item.Status
	item.Status = status
	// A missing item keeps its accountable borrower on LastBorrowerID.
	item.ClearBorrower()
	if status == models.ItemAvailable && prev != models.ItemAvailable {
		now := m.now()
		item.AvailableSince = &now
	}
	m.saveItem(ctx, item, "issue: status "+string(status), out)
	m.notifyCondition(ctx, tx, item)
}

func (m *Machine) notifyCondition(ctx context.Context, tx *models.Transaction, item *models.Item) {
	switch item.Status {
	case models.ItemRepair:
		m.notifier.SendByKey(ctx, tx, notify.KeyItemNeedsRepair, map[string]any{"itemId": item.ID})
	case models.ItemMissing:
		extra := map[string]any{"itemId": item.ID}
		if item.LastBorrowerID != nil {
			extra["lastBorrower"] = *item.LastBorrowerID
		}
		m.notifier.SendByKey(ctx, tx, notify.KeyItemMissing, extra)
	}
}

func (m *Machine) saveItem(ctx context.Context, item *models.Item, change string, out *Outcome) bool {
	if err := m.store.SaveItem(ctx, item); err != nil {
		m.fail(ctx, out, "item", item.ID, change, err)
		return false
	}
	out.Applied = true
	return true
}

// closeOpen closes the open withdrawals on itemID recorded no later than by,
// except keep. Later withdrawals belong to loans still to be applied.
func (m *Machine) closeOpen(ctx context.Context, itemID, keep string, by *db.Position, at time.Time, out *Outcome) {
	open, err := m.store.FindTransactions(ctx, db.TransactionQuery{ItemID: itemID, OpenOnly: true, ExcludeID: keep, RecordedBy: by})
	if err != nil {
		m.fail(ctx, out, "transaction", itemID, "find open withdrawals", err)
		return
	}
	for i := range open {
		o := &open[i]
		returned := at
		o.Closed = true
		o.ReturnDate = &returned
		if err := m.store.SaveTransaction(ctx, o); err != nil {
			m.fail(ctx, out, "transaction", o.ID, "close open withdrawal", err)
			continue
		}
		out.Applied = true
		out.ClosedIDs = append(out.ClosedIDs, o.ID)
		m.log.InfoContext(ctx, "closed open withdrawal", slog.String("item", itemID), slog.String("transaction", o.ID))
	}
}

func (m *Machine) lendAccessories(ctx context.Context, tx *models.Transaction, itemID, who string, out *Outcome) {
	if len(tx.BorrowedAccessories) == 0 {
		return
	}
	accs, err := m.store.LoadAccessories(ctx, tx.BorrowedAccessories)
	if err != nil {
		m.fail(ctx, out, "accessory", strings.Join(tx.BorrowedAccessories, ","), "load", err)
		return
	}

	found := make(map[string]bool, len(accs))
	for i := range accs {
		a := &accs[i]
		found[a.ID] = true
		borrower, item := who, itemID
		a.Status = models.AccessoryBorrowed
		a.BorrowerID = &borrower
		a.CurrentItemID = &item
		a.Note = fmt.Sprintf("withdrawn with item %s by %s", itemID, who)
		if err := m.store.SaveAccessory(ctx, a); err != nil {
			m.fail(ctx, out, "accessory", a.ID, "withdraw: lend with item "+itemID, err)
			continue
		}
		out.Applied = true
	}
	for _, id := range tx.BorrowedAccessories {
		if !found[id] {
			m.log.WarnContext(ctx, "borrowed accessory not found", slog.String("accessory", id), slog.String("transaction", tx.ID))
		}
	}
}

// recordPerUseFee stores the item's per-use fee on a withdraw that carries no
// amount yet.
func (m *Machine) recordPerUseFee(ctx context.Context, tx *models.Transaction, item *models.Item, out *Outcome) {
	if tx.AmountDue != nil {
		return
	}
	fee := m.fees.PerUseFee(item)
	if !fee.IsPositive() {
		return
	}
	ct := models.ChargePerUse
	tx.AmountDue, tx.ChargeType = &fee, &ct
	if err := m.store.SaveTransaction(ctx, tx); err != nil {
		tx.AmountDue, tx.ChargeType = nil, nil
		m.fail(ctx, out, "transaction", tx.ID, "record per-use fee", err)
		return
	}

	key := notify.KeyPerUseFee
	if m.fees.NeedsManualReview(fee) {
		key = notify.KeyManualPaymentReview
	}
	m.notifier.SendByKey(ctx, tx, key, map[string]any{"amount": fee.StringFixed(2), "chargeType": string(ct)})
}
