package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"Gin_postgres_redis_lending/models"

	"pgregory.net/rapid"
)

func checkInvariants(t *rapid.T, f *fixture, items []string) {
	for _, id := range items {
		it := f.item(t, id)
		if (it.Status == models.ItemBorrowed) != (it.BorrowerID != nil) {
			t.Fatalf("item %s: status %s with borrower %v", id, it.Status, it.BorrowerID)
		}
		if (it.Status == models.ItemRepair || it.Status == models.ItemMissing) && it.BorrowerID != nil {
			t.Fatalf("item %s: off-cycle status %s still has borrower", id, it.Status)
		}
		if open := f.openWithdrawals(t, id); len(open) > 1 {
			t.Fatalf("item %s: %d open withdrawals", id, len(open))
		}
	}
}

func TestApply_InvariantsHoldForAnySequence(t *testing.T) {
	items := []string{"I1", "I2"}
	borrowers := []string{"", "U1", "U2", "U3"}
	actions := []models.Action{models.ActionWithdraw, models.ActionReturn, models.ActionIssue}
	issues := []models.InspectionIssue{"", models.IssueNone, models.IssueDamage, models.IssueOther, models.IssueMissing}

	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(nil)
		for _, id := range items {
			f.addItem(t, id)
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			f.now = f.now.Add(time.Duration(rapid.IntRange(1, 600).Draw(t, "minutes")) * time.Minute)
			tx := models.Transaction{
				ID:     fmt.Sprintf("tx-%d", i),
				ItemID: ptr(rapid.SampledFrom(items).Draw(t, "item")),
				Action: rapid.SampledFrom(actions).Draw(t, "action"),
			}
			if b := rapid.SampledFrom(borrowers).Draw(t, "borrower"); b != "" {
				tx.BorrowerID = ptr(b)
			}
			if is := rapid.SampledFrom(issues).Draw(t, "issue"); is != "" {
				tx.InspectionIssue = ptr(is)
			}

			out, _ := f.apply(t, tx)
			if len(out.Errors) > 0 {
				t.Fatalf("step %d: unexpected errors %v", i, out.Errors)
			}
			checkInvariants(t, f, items)
		}
	})
}

func TestForcedReWithdraw_ExactlyOneAutoReturnPerCascade(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(nil)
		f.addItem(t, "I1")
		n := rapid.IntRange(2, 10).Draw(t, "withdrawals")

		for i := 0; i < n; i++ {
			f.now = f.now.Add(time.Minute)
			f.apply(t, withdraw(fmt.Sprintf("w%d", i), "I1", fmt.Sprintf("U%d", i)))
		}

		rets, err := f.mem.FindTransactions(context.Background(), returnQuery("I1"))
		if err != nil {
			t.Fatalf("find returns: %v", err)
		}
		if len(rets) != n-1 {
			t.Fatalf("%d withdrawals produced %d auto-returns", n, len(rets))
		}
		it := f.item(t, "I1")
		if it.BorrowerID == nil || *it.BorrowerID != fmt.Sprintf("U%d", n-1) {
			t.Fatalf("item borrower %v", it.BorrowerID)
		}
	})
}
