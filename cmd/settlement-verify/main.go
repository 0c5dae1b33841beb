package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/lessons_backend/config"
	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/shopspring/decimal"
)

// Offline ledger audit. Scans every settlement group and reports:
//   - groups whose signed amounts do not sum to zero
//   - Refund entries whose context diverges from the entry they reverse
//
// Exits 1 when any violation is found, so it can run in a cron job.
func main() {
	limit := flag.Int("limit", 0, "Max groups to scan (0 = all)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var groups []models.SettlementGroup
	q := db.Preload("Entries").Order("id ASC")
	if *limit > 0 {
		q = q.Limit(*limit)
	}
	if err := q.Find(&groups).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load settlement groups: %v\n", err)
		os.Exit(1)
	}

	violations := 0
	for _, group := range groups {
		if len(group.Entries) == 0 {
			fmt.Printf("group=%d checkout_ref=%s: no entries\n", group.ID, group.CheckoutRef)
			violations++
			continue
		}

		// Refund groups reverse a payable elsewhere; they are not zero-sum
		// on their own. Check their context against the original instead.
		if len(group.Entries) == 1 && group.Entries[0].Kind == models.TransactionKindRefund {
			refund := group.Entries[0]
			if refund.PayoutRef == nil {
				fmt.Printf("group=%d: refund without payout ref\n", group.ID)
				violations++
				continue
			}
			original, err := models.GetTransactionByPayoutRef(db, *refund.PayoutRef)
			if err != nil {
				fmt.Printf("group=%d payout_ref=%s: original entry missing: %v\n", group.ID, *refund.PayoutRef, err)
				violations++
				continue
			}
			if !refund.Context.Equal(original.Context) {
				fmt.Printf("group=%d payout_ref=%s: refund context diverges from original entry %d\n",
					group.ID, *refund.PayoutRef, original.ID)
				violations++
			}
			if !refund.Amount.Equal(original.Amount.Abs().Neg()) {
				fmt.Printf("group=%d payout_ref=%s: refund amount %s does not reverse original %s\n",
					group.ID, *refund.PayoutRef, refund.Amount, original.Amount)
				violations++
			}
			continue
		}

		total := decimal.Zero
		for _, entry := range group.Entries {
			total = total.Add(entry.Amount)
		}
		if !total.IsZero() {
			fmt.Printf("group=%d checkout_ref=%s: entries sum to %s, want 0\n", group.ID, group.CheckoutRef, total)
			violations++
		}
	}

	fmt.Printf("scanned %d groups, %d violations\n", len(groups), violations)
	if violations > 0 {
		os.Exit(1)
	}
}
