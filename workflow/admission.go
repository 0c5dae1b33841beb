package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/lessons_backend/config"
	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdmitFreeSession gates creation of a zero-amount free-help booking.
//
// Order matters: presence first (Unavailable), then the sliding-window cap
// (RateLimited), so the caller can render "no longer available" versus "try
// again later" distinctly. On admission the booking is created with the
// fixed free-session duration and a window sample is recorded.
func AdmitFreeSession(ctx context.Context, db *gorm.DB, logger *logrus.Logger, tutorId, clientId, serviceName string, subjects []string) (*models.Booking, error) {
	available, err := models.IsTutorAvailable(tutorId)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("%w: tutor %s", utils.ErrorUnavailable, tutorId)
	}

	// Best-effort lock narrows the window in which two concurrent requests
	// for one client could both pass the counter check. Admission stays
	// correct without it; the cap is a product limit, not a ledger invariant.
	if redisLock := config.GetRedisLock(); redisLock != nil {
		lock, lockErr := redisLock.Obtain(ctx, "freehelp:admit:"+clientId, 10*time.Second, nil)
		if lockErr == nil {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					logger.WithFields(logrus.Fields{"client_id": clientId}).
						Warn("failed to release admission lock: " + releaseErr.Error())
				}
			}()
		} else if lockErr != redislock.ErrNotObtained {
			logger.WithFields(logrus.Fields{"client_id": clientId}).
				Warn("error obtaining admission lock; proceeding without it: " + lockErr.Error())
		}
	}

	now := time.Now().UTC()
	taken, err := models.CountFreeSessionsInWindow(clientId, tutorId, now)
	if err != nil {
		return nil, err
	}
	if taken >= models.FreeSessionLimit {
		return nil, fmt.Errorf("%w: client %s has taken %d in the current window", utils.ErrorRateLimited, clientId, taken)
	}

	if serviceName == "" {
		serviceName = "Free Help"
	}
	booking := models.Booking{
		ID:              uuid.NewString(),
		TutorId:         tutorId,
		ClientId:        clientId,
		ServiceName:     serviceName,
		Subjects:        subjects,
		StartTime:       now,
		LocationMode:    models.LocationModeOnline,
		SessionKind:     models.SessionKindFreeHelp,
		DurationMinutes: models.FreeSessionDurationMinutes,
		CheckoutRef:     "free:" + uuid.NewString(),
	}
	if err := db.WithContext(ctx).Create(&booking).Error; err != nil {
		return nil, err
	}

	if err := models.RecordFreeSession(clientId, tutorId, booking.ID, now); err != nil {
		// The booking exists; a lost sample only under-counts the window.
		logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"client_id":  clientId,
		}).Warn("failed to record free-session window sample: " + err.Error())
	}
	return &booking, nil
}

// CompleteFreeSession is called when the booking domain reports the free
// session finished. This is the one place admission feeds back into the
// recalculation queue: the tutor gave time away for free, so their score
// refresh jumps the queue.
func CompleteFreeSession(ctx context.Context, db *gorm.DB, logger *logrus.Logger, bookingId string) (*models.RecalculationQueueEntry, error) {
	var entry *models.RecalculationQueueEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := models.GetBookingById(tx, bookingId)
		if err != nil {
			return err
		}
		if booking.SessionKind != models.SessionKindFreeHelp {
			return fmt.Errorf("%w: booking %s is not a free session", utils.ErrorInvariantViolation, bookingId)
		}
		entry, err = EnqueueRecalculation(tx, logger, booking.TutorId, models.RecalcReasonFreeSessionCompleted, models.RecalcPriorityHigh)
		return err
	})
	if err != nil {
		config.LogError(logger, "admission.go", "CompleteFreeSession", "Transaction", bookingId, err)
		return nil, err
	}
	return entry, nil
}
