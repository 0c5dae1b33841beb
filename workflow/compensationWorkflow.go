package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/lessons_backend/config"
	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CompensationResult struct {
	PayoutRef string                    `json:"payout_ref"`
	Reason    models.CompensationReason `json:"reason"`
	Refund    models.Transaction        `json:"refund"`

	// AlreadyProcessed marks an idempotent replay of the payout event.
	AlreadyProcessed bool `json:"already_processed"`

	RecalcEntry *models.RecalculationQueueEntry `json:"-"`
}

// BuildRefundEntry derives the reversing entry from the original.
// The context is copied verbatim — compensation must reflect history as it
// was at settlement time, not present-day names or service details — and the
// amount is normalized to a credit-reversal of the original magnitude
// regardless of the original entry's sign.
func BuildRefundEntry(original models.Transaction, now time.Time) models.Transaction {
	availableAt := now
	return models.Transaction{
		ProfileId:   original.ProfileId,
		BookingId:   original.BookingId,
		Kind:        models.TransactionKindRefund,
		Amount:      original.Amount.Abs().Neg(),
		Status:      models.TransactionStatusAvailable,
		AvailableAt: &availableAt,
		ChargeRef:   original.ChargeRef,
		PayoutRef:   original.PayoutRef,
		Context:     original.Context,
	}
}

// Compensate consumes a payout.failed or payout.canceled gateway event.
// One handler for both reasons: the refund shape is identical, so the
// copied-context invariant cannot diverge between them.
//
// An event for an unknown payout reference is NotFound, never a silent
// no-op — it signals an upstream integrity problem.
func Compensate(ctx context.Context, db *gorm.DB, logger *logrus.Logger, payoutRef string, reason models.CompensationReason) (*CompensationResult, error) {
	if payoutRef == "" {
		return nil, fmt.Errorf("%w: payout ref is required", utils.ErrorInvariantViolation)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	var result *CompensationResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := models.GetTransactionByPayoutRef(tx, payoutRef)
		if err != nil {
			return err
		}

		if existing, err := models.GetRefundByPayoutRef(tx, payoutRef); err == nil {
			result = &CompensationResult{
				PayoutRef:        payoutRef,
				Reason:           reason,
				Refund:           *existing,
				AlreadyProcessed: true,
			}
			return nil
		} else if !errors.Is(err, utils.ErrorRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		refund := BuildRefundEntry(*original, now)
		group := models.SettlementGroup{
			BookingId:     original.BookingId,
			CheckoutRef:   "refund:" + payoutRef,
			Entries:       []models.Transaction{refund},
			CorrelationId: correlationId,
			SettledAt:     now,
		}
		if err := tx.Create(&group).Error; err != nil {
			if isDuplicateKeyErr(err) {
				existing, lookupErr := models.GetRefundByPayoutRef(tx, payoutRef)
				if lookupErr != nil {
					return lookupErr
				}
				result = &CompensationResult{
					PayoutRef:        payoutRef,
					Reason:           reason,
					Refund:           *existing,
					AlreadyProcessed: true,
				}
				return nil
			}
			return err
		}

		if err := tx.Model(&models.Transaction{}).
			Where("id = ?", original.ID).
			Update("status", models.TransactionStatusFailed).Error; err != nil {
			return err
		}

		recalc, err := EnqueueRecalculation(tx, logger, original.ProfileId, models.RecalcReasonPayoutCompensated, models.RecalcPriorityHigh)
		if err != nil {
			return err
		}

		result = &CompensationResult{
			PayoutRef:   payoutRef,
			Reason:      reason,
			Refund:      group.Entries[0],
			RecalcEntry: recalc,
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "compensationWorkflow.go", "Compensate", "Transaction", map[string]string{
			"payout_ref": payoutRef,
			"reason":     string(reason),
		}, err)
		return nil, err
	}
	return result, nil
}

// AttachPayout records the gateway payout reference on the pending payable
// entry it pays, moving it to Clearing. Idempotent: a replayed
// payout.created matches zero rows and changes nothing.
func AttachPayout(ctx context.Context, db *gorm.DB, logger *logrus.Logger, chargeRef, profileId, payoutRef string) error {
	err := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("charge_ref = ? AND profile_id = ? AND payout_ref IS NULL AND status = ? AND kind IN ?",
			chargeRef, profileId, models.TransactionStatusPending,
			[]models.TransactionKind{
				models.TransactionKindTutorPayout,
				models.TransactionKindReferralCommission,
				models.TransactionKindAgentCommission,
			}).
		Updates(map[string]interface{}{
			"status":     models.TransactionStatusClearing,
			"payout_ref": payoutRef,
		}).Error
	if err != nil {
		config.LogError(logger, "compensationWorkflow.go", "AttachPayout", "Updates", map[string]string{
			"charge_ref": chargeRef,
			"profile_id": profileId,
			"payout_ref": payoutRef,
		}, err)
	}
	return err
}

// MarkPayoutPaid flips a clearing entry to Available once the gateway
// confirms funds arrived.
func MarkPayoutPaid(ctx context.Context, db *gorm.DB, logger *logrus.Logger, payoutRef string, paidAt time.Time) error {
	err := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("payout_ref = ? AND kind <> ? AND status = ?",
			payoutRef, models.TransactionKindRefund, models.TransactionStatusClearing).
		Updates(map[string]interface{}{
			"status":       models.TransactionStatusAvailable,
			"available_at": paidAt,
		}).Error
	if err != nil {
		config.LogError(logger, "compensationWorkflow.go", "MarkPayoutPaid", "Updates", payoutRef, err)
	}
	return err
}
