// Package sweep is the scheduled pass over open loans: overdue notices while
// a loan is late, and the non-return charge once it passes the grace period.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/fees"
	"Gin_postgres_redis_lending/inventory"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Store is the read side the sweep needs.
type Store interface {
	LoadItem(ctx context.Context, id string) (*models.Item, error)
	FindTransactions(ctx context.Context, q db.TransactionQuery) ([]models.Transaction, error)
}

// Report counts what one pass did.
type Report struct {
	Scanned  int `json:"scanned"`
	Notified int `json:"notified"`
	Charged  int `json:"charged"`
	Review   int `json:"review"`
	Failed   int `json:"failed"`
}

type Sweeper struct {
	Store    Store
	Machine  *inventory.Machine
	Fees     *fees.Calculator
	Notifier notify.Notifier
	Payments notify.Payments
	Log      *slog.Logger
	Tracer   trace.Tracer
	Now      func() time.Time
}

func New(store Store, m *inventory.Machine, n notify.Notifier, p notify.Payments, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		Store:    store,
		Machine:  m,
		Fees:     m.Fees(),
		Notifier: n,
		Payments: p,
		Log:      log,
		Tracer:   otel.Tracer("Gin_postgres_redis_lending/sweep"),
		Now:      time.Now,
	}
}

// Start runs a pass immediately and then every interval until ctx ends.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx, s.Now()); err != nil && !errors.Is(err, context.Canceled) {
			s.Log.ErrorContext(ctx, "sweep failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce evaluates every open withdrawal due before asOf.
func (s *Sweeper) RunOnce(ctx context.Context, asOf time.Time) (Report, error) {
	ctx, span := s.Tracer.Start(ctx, "sweep.RunOnce",
		trace.WithAttributes(attribute.String("lending.as_of", asOf.Format(time.RFC3339))))
	defer span.End()

	var rep Report
	loans, err := s.Store.FindTransactions(ctx, db.TransactionQuery{OpenOnly: true, DueBefore: &asOf})
	if err != nil {
		span.RecordError(err)
		return rep, err
	}
	grace := s.Fees.NonReturnGraceDays()

	for i := range loans {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		loan := &loans[i]
		rep.Scanned++

		var item *models.Item
		if loan.ItemID != nil {
			if it, err := s.Store.LoadItem(ctx, *loan.ItemID); err == nil {
				item = it
			}
		}
		late, ok := s.Fees.LateFee(loan, item, asOf)
		if !ok || late.DaysLate == 0 {
			continue
		}

		if late.DaysLate >= grace {
			s.charge(ctx, loan, &rep)
			continue
		}
		s.Notifier.SendByKey(ctx, loan, notify.KeyOverdueNotice, map[string]any{
			"daysLate": late.DaysLate,
			"lateFee":  late.Fee.StringFixed(2),
		})
		rep.Notified++
	}

	span.SetAttributes(
		attribute.Int("lending.scanned", rep.Scanned),
		attribute.Int("lending.charged", rep.Charged),
		attribute.Int("lending.failed", rep.Failed),
	)
	s.Log.InfoContext(ctx, "sweep finished",
		slog.Int("scanned", rep.Scanned),
		slog.Int("notified", rep.Notified),
		slog.Int("charged", rep.Charged),
		slog.Int("review", rep.Review),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

func (s *Sweeper) charge(ctx context.Context, loan *models.Transaction, rep *Report) {
	res, err := s.Machine.ProcessNonReturnCharge(ctx, loan.ID, nil)
	if err != nil {
		rep.Failed++
		s.Log.ErrorContext(ctx, "non-return charge failed", slog.String("transaction", loan.ID), slog.Any("err", err))
		return
	}
	if !res.Applied {
		return
	}
	if res.ManualReview {
		rep.Review++
		return
	}

	borrower := ""
	if b := res.Transaction.EffectiveBorrower(); b != nil {
		borrower = *b
	}
	pay := s.Payments.Charge(ctx, borrower, res.Amount, "non-return charge for item presumed lost", res.Transaction, models.ChargeNonReturn)
	if !pay.Success {
		rep.Failed++
		s.Log.WarnContext(ctx, "payment not accepted",
			slog.String("transaction", loan.ID), slog.String("status", pay.Status), slog.Any("err", pay.Err))
		return
	}
	rep.Charged++
}
