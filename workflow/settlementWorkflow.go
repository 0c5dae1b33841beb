package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/lessons_backend/config"
	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// settlementLockWaitSeconds bounds how long a settlement attempt blocks on
// the per-booking advisory lock before surfacing Contention to the caller.
const settlementLockWaitSeconds = 10

type SettlementResult struct {
	GroupId   int                  `json:"group_id"`
	BookingId string               `json:"booking_id"`
	Entries   []models.Transaction `json:"entries"`

	// AlreadyProcessed marks an idempotent replay: the entries are the prior
	// settlement's, nothing new was written.
	AlreadyProcessed bool `json:"already_processed"`

	// RecalcEntry is the recalculation queued for the tutor, nil on replay.
	RecalcEntry *models.RecalculationQueueEntry `json:"-"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// Settle converts a completed paid booking into its ledger entries.
//
// The operation is atomic: either the whole split, the group header and the
// recalculation enqueue commit together, or nothing does. Replays of the
// same checkout reference return the prior result unchanged. Concurrent
// attempts for one booking are serialized by the advisory lock plus the
// booking row lock; the loser of the race sees the winner's entries.
func Settle(ctx context.Context, db *gorm.DB, logger *logrus.Logger, bookingId, checkoutRef, chargeRef string) (*SettlementResult, error) {
	if bookingId == "" || checkoutRef == "" {
		return nil, fmt.Errorf("%w: booking id and checkout ref are required", utils.ErrorInvariantViolation)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	var result *SettlementResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireSettlementLock(tx, bookingId, settlementLockWaitSeconds); err != nil {
			return err
		}
		defer ReleaseSettlementLock(tx, bookingId)

		booking, err := models.GetBookingForUpdate(tx, bookingId)
		if err != nil {
			return err
		}

		// Idempotent replay: any prior group for this checkout ref, or for
		// this booking, means the work is already done.
		if prior, err := models.GetSettlementGroupByCheckoutRef(tx, checkoutRef); err == nil {
			result = priorResult(prior)
			return nil
		} else if !errors.Is(err, utils.ErrorRecordNotFound) {
			return err
		}
		if prior, err := priorGroupForBooking(tx, bookingId); err == nil {
			logger.WithFields(logrus.Fields{
				"booking_id":   bookingId,
				"checkout_ref": checkoutRef,
				"prior_ref":    prior.CheckoutRef,
			}).Warn("booking already settled under a different checkout ref; returning prior result")
			result = priorResult(prior)
			return nil
		} else if !errors.Is(err, utils.ErrorRecordNotFound) {
			return err
		}

		if booking.SessionKind == models.SessionKindFreeHelp || booking.Amount.Sign() == 0 {
			return fmt.Errorf("%w: free booking %s reached settlement", utils.ErrorInvariantViolation, bookingId)
		}

		snapshot, err := ResolveContext(tx, logger, booking)
		if err != nil {
			return err
		}

		shares, err := ComputeSplit(booking.Amount, booking.ReferrerId != nil, booking.AgentId != nil, DefaultSplitPolicy())
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		entries, err := BuildSettlementEntries(booking, snapshot, shares, chargeRef, now)
		if err != nil {
			return err
		}

		group := models.SettlementGroup{
			BookingId:     &booking.ID,
			CheckoutRef:   checkoutRef,
			Entries:       entries,
			CorrelationId: correlationId,
			SettledAt:     now,
		}
		if err := tx.Create(&group).Error; err != nil {
			if isDuplicateKeyErr(err) {
				// Lost a cross-instance race on the unique checkout ref.
				prior, lookupErr := models.GetSettlementGroupByCheckoutRef(tx, checkoutRef)
				if lookupErr != nil {
					return lookupErr
				}
				result = priorResult(prior)
				return nil
			}
			return err
		}

		recalc, err := EnqueueRecalculation(tx, logger, booking.TutorId, models.RecalcReasonPaymentSettled, models.RecalcPriorityNormal)
		if err != nil {
			return err
		}

		result = &SettlementResult{
			GroupId:     group.ID,
			BookingId:   booking.ID,
			Entries:     group.Entries,
			RecalcEntry: recalc,
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "settlementWorkflow.go", "Settle", "Transaction", map[string]string{
			"booking_id":   bookingId,
			"checkout_ref": checkoutRef,
		}, err)
		return nil, err
	}
	return result, nil
}

func priorGroupForBooking(tx *gorm.DB, bookingId string) (*models.SettlementGroup, error) {
	var group models.SettlementGroup
	err := tx.Preload("Entries").Where("booking_id = ?", bookingId).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &group, nil
}

func priorResult(group *models.SettlementGroup) *SettlementResult {
	bookingId := ""
	if group.BookingId != nil {
		bookingId = *group.BookingId
	}
	return &SettlementResult{
		GroupId:          group.ID,
		BookingId:        bookingId,
		Entries:          group.Entries,
		AlreadyProcessed: true,
	}
}
