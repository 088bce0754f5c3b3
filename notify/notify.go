// Package notify holds the outbound notification and payment dispatchers.
// Both are fire-and-forget from the lending core's point of view: delivery
// failures are logged here and never surfaced to the caller.
package notify

import (
	"context"
	"log/slog"

	"Gin_postgres_redis_lending/models"

	"github.com/shopspring/decimal"
)

// Template keys sent by the lending flows.
const (
	KeyWithdrawReceipt     = "withdraw_receipt"
	KeyAutoReturn          = "auto_return"
	KeyReturnReceipt       = "return_receipt"
	KeyItemNeedsRepair     = "item_needs_repair"
	KeyItemMissing         = "item_missing"
	KeyPerUseFee           = "per_use_fee"
	KeyOverdueNotice       = "overdue_notice"
	KeyNonReturnCharge     = "non_return_charge"
	KeyManualPaymentReview = "manual_payment_review"
	KeyAccessoryReturned   = "accessory_returned"
)

type Notifier interface {
	SendByKey(ctx context.Context, tx *models.Transaction, templateKey string, extra map[string]any)
}

// ChargeResult mirrors what a card gateway reports back.
type ChargeResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Err     error  `json:"-"`
}

type Payments interface {
	Charge(ctx context.Context, borrowerID string, amount decimal.Decimal, description string, tx *models.Transaction, chargeType models.ChargeType) ChargeResult
}

// LogNotifier writes every notification to the logger instead of delivering it.
type LogNotifier struct{ Log *slog.Logger }

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{Log: log}
}

func (n *LogNotifier) SendByKey(ctx context.Context, tx *models.Transaction, key string, extra map[string]any) {
	attrs := []any{slog.String("template", key)}
	if tx != nil {
		attrs = append(attrs, slog.String("transaction", tx.ID))
		if b := tx.EffectiveBorrower(); b != nil {
			attrs = append(attrs, slog.String("borrower", *b))
		}
	}
	if len(extra) > 0 {
		attrs = append(attrs, slog.Any("extra", extra))
	}
	n.Log.InfoContext(ctx, "notification", attrs...)
}

// LogPayments records the charge request and reports it as pending; there is
// no gateway behind it.
type LogPayments struct{ Log *slog.Logger }

func NewLogPayments(log *slog.Logger) *LogPayments {
	if log == nil {
		log = slog.Default()
	}
	return &LogPayments{Log: log}
}

func (p *LogPayments) Charge(ctx context.Context, borrowerID string, amount decimal.Decimal, desc string, tx *models.Transaction, ct models.ChargeType) ChargeResult {
	txID := ""
	if tx != nil {
		txID = tx.ID
	}
	p.Log.InfoContext(ctx, "charge requested",
		slog.String("borrower", borrowerID),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("type", string(ct)),
		slog.String("transaction", txID),
		slog.String("description", desc))
	return ChargeResult{Success: true, Status: "pending"}
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) SendByKey(ctx context.Context, tx *models.Transaction, key string, extra map[string]any) {
	for _, n := range m {
		n.SendByKey(ctx, tx, key, extra)
	}
}
