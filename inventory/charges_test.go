package inventory

import (
	"context"
	"testing"

	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"
	"Gin_postgres_redis_lending/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lostLoan(t *testing.T, cfg config.Values) *fixture {
	t.Helper()
	f := newFixture(cfg)
	f.addItem(t, "I1", func(it *models.Item) { it.ReplacementValue = money("250") })
	f.addAccessory(t, "B1", "35.5")
	f.addAccessory(t, "B2", "20")

	w := withdraw("w1", "I1", "U1")
	w.BorrowedAccessories = []string{"B1", "B2"}
	f.apply(t, w)
	_, err := f.m.ReturnAccessory(context.Background(), "B2", false)
	require.NoError(t, err)
	return f
}

func TestProcessNonReturnCharge(t *testing.T) {
	f := lostLoan(t, nil)

	res, err := f.m.ProcessNonReturnCharge(context.Background(), "w1", money("80"))

	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.ManualReview)
	assert.Equal(t, "235.5", res.Amount.String())

	tx := f.tx(t, "w1")
	assert.True(t, tx.Closed)
	assert.Nil(t, tx.ReturnDate)
	require.True(t, tx.HasCharge(models.ChargeNonReturn))
	assert.Equal(t, "235.5", tx.AmountDue.String())
	assert.Contains(t, tx.Note, "presumed lost")

	assert.Equal(t, models.ItemBorrowed, f.item(t, "I1").Status, "item status untouched")
	assert.Empty(t, f.openWithdrawals(t, "I1"))
	assert.Contains(t, f.rec.Keys(), notify.KeyNonReturnCharge)
}

func TestProcessNonReturnCharge_MissingAccessoryNotBilled(t *testing.T) {
	f := lostLoan(t, nil)
	a, err := f.m.ReturnAccessory(context.Background(), "B1", true)
	require.NoError(t, err)
	require.Equal(t, models.AccessoryMissing, a.Status)
	require.Equal(t, "I1", *a.CurrentItemID)

	res, err := f.m.ProcessNonReturnCharge(context.Background(), "w1", money("80"))

	require.NoError(t, err)
	assert.Equal(t, "200", res.Amount.String(), "only accessories still borrowed count")
	b1 := f.accessory(t, "B1")
	assert.Equal(t, "U1", *b1.BorrowerID, "loss stays attributable")
}

func TestProcessNonReturnCharge_Idempotent(t *testing.T) {
	f := lostLoan(t, nil)
	ctx := context.Background()

	_, err := f.m.ProcessNonReturnCharge(ctx, "w1", money("80"))
	require.NoError(t, err)
	version := f.tx(t, "w1").Version

	res, err := f.m.ProcessNonReturnCharge(ctx, "w1", money("100"))

	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "235.5", res.Amount.String())
	assert.Equal(t, version, f.tx(t, "w1").Version)

	charges := 0
	for _, k := range f.rec.Keys() {
		if k == notify.KeyNonReturnCharge {
			charges++
		}
	}
	assert.Equal(t, 1, charges)
}

func TestProcessNonReturnCharge_ConfiguredPercentage(t *testing.T) {
	f := lostLoan(t, config.Values{config.KeyNonReturnChargePercentage: "100"})

	res, err := f.m.ProcessNonReturnCharge(context.Background(), "w1", nil)

	require.NoError(t, err)
	assert.Equal(t, "285.5", res.Amount.String())
}

func TestProcessNonReturnCharge_ManualReview(t *testing.T) {
	f := lostLoan(t, config.Values{config.KeyManualReviewThreshold: "200"})

	res, err := f.m.ProcessNonReturnCharge(context.Background(), "w1", money("80"))

	require.NoError(t, err)
	assert.True(t, res.ManualReview)
	assert.Contains(t, f.rec.Keys(), notify.KeyManualPaymentReview)
	assert.NotContains(t, f.rec.Keys(), notify.KeyNonReturnCharge)
}

func TestProcessNonReturnCharge_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.addItem(t, "I1")
	f.apply(t, withdraw("w1", "I1", "U1"))
	f.apply(t, returnTx("r1", "I1", "U1", models.IssueNone))
	f.apply(t, withdraw("w2", "I1", "U2"))

	_, err := f.m.ProcessNonReturnCharge(ctx, "missing", nil)
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, err = f.m.ProcessNonReturnCharge(ctx, "r1", nil)
	assert.ErrorIs(t, err, ErrNotChargeable)

	_, err = f.m.ProcessNonReturnCharge(ctx, "w1", nil)
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	_, err = f.m.ProcessNonReturnCharge(ctx, "w2", money("-5"))
	assert.ErrorIs(t, err, ErrNotApplicable)
	assert.False(t, f.tx(t, "w2").Closed)
}

func TestReturnAccessory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.addItem(t, "I1")
	f.addAccessory(t, "B1", "10")
	f.addAccessory(t, "B2", "10")
	w := withdraw("w1", "I1", "U1")
	w.BorrowedAccessories = []string{"B1", "B2"}
	f.apply(t, w)

	a, err := f.m.ReturnAccessory(ctx, "B1", false)
	require.NoError(t, err)
	assert.Equal(t, models.AccessoryAvailable, a.Status)
	stored := f.accessory(t, "B1")
	assert.Equal(t, models.AccessoryAvailable, stored.Status)
	assert.Nil(t, stored.BorrowerID)
	assert.Nil(t, stored.CurrentItemID)

	_, err = f.m.ReturnAccessory(ctx, "B2", true)
	require.NoError(t, err)
	lost := f.accessory(t, "B2")
	assert.Equal(t, models.AccessoryMissing, lost.Status)
	assert.Equal(t, "U1", *lost.BorrowerID)
	assert.Equal(t, "I1", *lost.CurrentItemID)

	_, err = f.m.ReturnAccessory(ctx, "B1", false)
	assert.ErrorIs(t, err, ErrAccessoryNotBorrowed)

	_, err = f.m.ReturnAccessory(ctx, "nope", false)
	assert.ErrorIs(t, err, db.ErrNotFound)

	assert.Contains(t, f.rec.Keys(), notify.KeyAccessoryReturned)
}
