package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"Gin_postgres_redis_lending/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	NotificationStream = "lending:notifications"
	ChargeStream       = "lending:charges"
)

// RedisOutbox appends notifications and charge requests to redis streams for
// the mail and payment workers to consume.
type RedisOutbox struct {
	rdb    *redis.Client
	log    *slog.Logger
	maxLen int64
}

func NewRedisOutbox(rdb *redis.Client, log *slog.Logger) *RedisOutbox {
	if log == nil {
		log = slog.Default()
	}
	return &RedisOutbox{rdb: rdb, log: log, maxLen: 100_000}
}

func (o *RedisOutbox) add(ctx context.Context, stream string, values map[string]any) (string, error) {
	return o.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: values,
	}).Result()
}

func (o *RedisOutbox) SendByKey(ctx context.Context, tx *models.Transaction, key string, extra map[string]any) {
	values := map[string]any{"template": key}
	if tx != nil {
		values["transaction"] = tx.ID
		if tx.ItemID != nil {
			values["item"] = *tx.ItemID
		}
		if b := tx.EffectiveBorrower(); b != nil {
			values["borrower"] = *b
		}
	}
	if len(extra) > 0 {
		raw, err := json.Marshal(extra)
		if err != nil {
			o.log.WarnContext(ctx, "notification extra not encodable", slog.String("template", key), slog.Any("err", err))
		} else {
			values["extra"] = string(raw)
		}
	}
	if _, err := o.add(ctx, NotificationStream, values); err != nil {
		o.log.ErrorContext(ctx, "enqueue notification", slog.String("template", key), slog.Any("err", err))
	}
}

// Charge queues the request; Status carries the stream entry id.
func (o *RedisOutbox) Charge(ctx context.Context, borrowerID string, amount decimal.Decimal, desc string, tx *models.Transaction, ct models.ChargeType) ChargeResult {
	values := map[string]any{
		"borrower":    borrowerID,
		"amount":      amount.StringFixed(2),
		"type":        string(ct),
		"description": desc,
	}
	if tx != nil {
		values["transaction"] = tx.ID
	}
	id, err := o.add(ctx, ChargeStream, values)
	if err != nil {
		o.log.ErrorContext(ctx, "enqueue charge", slog.String("borrower", borrowerID), slog.Any("err", err))
		return ChargeResult{Status: "failed", Err: fmt.Errorf("enqueue charge: %w", err)}
	}
	return ChargeResult{Success: true, Status: "queued:" + id}
}
