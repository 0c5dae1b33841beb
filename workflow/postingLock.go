package workflow

import (
	"fmt"

	"github.com/mmdatafocus/lessons_backend/utils"
	"gorm.io/gorm"
)

// Advisory locks serialize settlement per booking and enqueue-merging per
// profile across instances.
// NOTE: GET_LOCK is connection-scoped, so these must be called on the same
// *gorm.DB transaction that does the posting.

// AcquireSettlementLock blocks up to timeoutSeconds for the per-booking lock.
// Returns ErrorContention when the wait expires; the caller retries with
// backoff, the engine never retries itself.
func AcquireSettlementLock(tx *gorm.DB, bookingId string, timeoutSeconds int) error {
	lockName := fmt.Sprintf("settle:%s", bookingId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, ?)", lockName, timeoutSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("%w: booking_id=%s", utils.ErrorContention, bookingId)
	}
	return nil
}

func ReleaseSettlementLock(tx *gorm.DB, bookingId string) {
	lockName := fmt.Sprintf("settle:%s", bookingId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// AcquireRecalcLock serializes the read-check-update of the merge-on-enqueue
// logic for one profile, so two concurrent enqueues cannot both miss the
// existing unprocessed row and insert duplicates.
func AcquireRecalcLock(tx *gorm.DB, profileId string) error {
	lockName := fmt.Sprintf("recalc:%s", profileId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 10)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire recalc lock for profile_id=%s", profileId)
	}
	return nil
}

func ReleaseRecalcLock(tx *gorm.DB, profileId string) {
	lockName := fmt.Sprintf("recalc:%s", profileId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
