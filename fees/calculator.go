// Package fees computes late fees, non-return charges and per-use fees.
// Every function is pure; amounts are kept unrounded internally and rounded
// to cents only on the way out.
package fees

import (
	"math"
	"time"

	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Calculator struct {
	cfg config.Provider
	now func() time.Time
}

type Option func(*Calculator)

// WithClock replaces time.Now as the default as-of date.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

func NewCalculator(cfg config.Provider, opts ...Option) *Calculator {
	c := &Calculator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type LateFee struct {
	DaysLate int             `json:"daysLate"`
	Fee      decimal.Decimal `json:"lateFee"`
}

// DaysLate rounds the distance from due to asOf to whole days, never below 0.
func DaysLate(due, asOf time.Time) int {
	days := math.Round(asOf.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// LateFee returns ok=false when the fee does not apply: no due date, or an
// item with a negative replacement value. A zero asOf means now.
func (c *Calculator) LateFee(t *models.Transaction, item *models.Item, asOf time.Time) (LateFee, bool) {
	if t == nil || t.DueDate == nil {
		return LateFee{}, false
	}
	if item != nil && item.ReplacementValue != nil && item.ReplacementValue.IsNegative() {
		return LateFee{}, false
	}
	if asOf.IsZero() {
		asOf = c.now()
	}

	days := DaysLate(*t.DueDate, asOf)
	if days == 0 {
		return LateFee{DaysLate: 0, Fee: decimal.Zero}, true
	}

	fee := config.Decimal(c.cfg, config.KeyDailyLateFeeRate).Mul(decimal.NewFromInt(int64(days)))
	if fee.IsNegative() {
		fee = decimal.Zero
	}

	capPct := config.Decimal(c.cfg, config.KeyLateFeeCapPercentage)
	if item != nil && item.ReplacementValue != nil && capPct.IsPositive() {
		limit := capPct.Div(hundred).Mul(*item.ReplacementValue)
		if fee.GreaterThan(limit) {
			fee = limit
		}
	}

	return LateFee{DaysLate: days, Fee: fee.Round(2)}, true
}

// UnreturnedAccessoryValue sums the replacement value of accessories lent
// with t that are still out with t's item. accessories is the current state
// of t.BorrowedAccessories; entries not listed on t are ignored.
func UnreturnedAccessoryValue(t *models.Transaction, accessories []models.Accessory) decimal.Decimal {
	return unreturnedAccessoryValue(t, accessories).Round(2)
}

func unreturnedAccessoryValue(t *models.Transaction, accessories []models.Accessory) decimal.Decimal {
	total := decimal.Zero
	if t == nil || t.ItemID == nil {
		return total
	}
	lent := make(map[string]bool, len(t.BorrowedAccessories))
	for _, id := range t.BorrowedAccessories {
		lent[id] = true
	}
	for i := range accessories {
		a := &accessories[i]
		if !lent[a.ID] || !a.OutWith(*t.ItemID) {
			continue
		}
		if a.ReplacementValue.IsPositive() {
			total = total.Add(a.ReplacementValue)
		}
	}
	return total
}

// NonReturnCharge is pct% of the item's replacement value plus whatever
// accessories never came back. ok=false for a negative replacement value or
// a negative percentage.
func NonReturnCharge(t *models.Transaction, item *models.Item, accessories []models.Accessory, pct decimal.Decimal) (decimal.Decimal, bool) {
	if pct.IsNegative() {
		return decimal.Zero, false
	}
	value := decimal.Zero
	if item != nil && item.ReplacementValue != nil {
		if item.ReplacementValue.IsNegative() {
			return decimal.Zero, false
		}
		value = *item.ReplacementValue
	}
	charge := pct.Div(hundred).Mul(value).Add(unreturnedAccessoryValue(t, accessories))
	return charge.Round(2), true
}

// NonReturnPercentage is the configured default for NonReturnCharge.
func (c *Calculator) NonReturnPercentage() decimal.Decimal {
	return config.Decimal(c.cfg, config.KeyNonReturnChargePercentage)
}

// PerUseFee charges feeStepAmount once the replacement value reaches
// feeFreeThreshold, plus another step for every full feeValueIncrement above
// it, plus feeBatteryAdder for battery-powered items. An unknown replacement
// value never reaches the threshold.
func (c *Calculator) PerUseFee(item *models.Item) decimal.Decimal {
	if item == nil || !config.Bool(c.cfg, config.KeyFeeSystemEnabled) {
		return decimal.Zero
	}

	threshold := config.Decimal(c.cfg, config.KeyFeeFreeThreshold)
	increment := config.Decimal(c.cfg, config.KeyFeeValueIncrement)
	step := config.Decimal(c.cfg, config.KeyFeeStepAmount)

	fee := decimal.Zero
	if value := item.ReplacementValue; value != nil && step.IsPositive() && value.GreaterThanOrEqual(threshold) {
		steps := decimal.Zero
		if increment.IsPositive() {
			steps = value.Sub(threshold).Div(increment).Floor()
		}
		fee = step.Mul(steps.Add(decimal.NewFromInt(1)))
	}

	if item.BatteryPowered {
		if adder := config.Decimal(c.cfg, config.KeyFeeBatteryAdder); adder.IsPositive() {
			fee = fee.Add(adder)
		}
	}
	return fee.Round(2)
}

// NeedsManualReview reports whether a charge of amount goes to a person
// before the payment dispatcher. A zero threshold disables review.
func (c *Calculator) NeedsManualReview(amount decimal.Decimal) bool {
	limit := config.Decimal(c.cfg, config.KeyManualReviewThreshold)
	return limit.IsPositive() && amount.GreaterThanOrEqual(limit)
}

// NonReturnGraceDays is how long a loan may stay overdue before it is
// presumed lost.
func (c *Calculator) NonReturnGraceDays() int {
	return config.Int(c.cfg, config.KeyNonReturnGraceDays, 30)
}
