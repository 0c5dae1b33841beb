package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/lessons_backend/config"
	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnqueueRecalculation requests a reputation recompute for a profile.
//
// Merge rule: at most one unprocessed entry per profile. A duplicate enqueue
// promotes priority to the higher of the two, keeps the most recent reason,
// and does NOT reset enqueued_at, so the entry keeps its original place in
// the queue. The read-check-update runs under a per-profile advisory lock so
// two concurrent enqueues cannot both insert.
//
// Must be called inside the caller's transaction: the enqueue commits or
// rolls back together with the settlement that caused it.
func EnqueueRecalculation(tx *gorm.DB, logger *logrus.Logger, profileId string, reason models.RecalcReason, priority models.RecalcPriority) (*models.RecalculationQueueEntry, error) {
	if err := AcquireRecalcLock(tx, profileId); err != nil {
		return nil, err
	}
	defer ReleaseRecalcLock(tx, profileId)

	existing, err := models.GetUnprocessedEntryForUpdate(tx, profileId)
	if err == nil {
		merged := models.MaxRecalcPriority(existing.Priority, priority)
		if err := tx.Model(&models.RecalculationQueueEntry{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"priority": merged,
				"reason":   reason,
			}).Error; err != nil {
			return nil, err
		}
		existing.Priority = merged
		existing.Reason = reason
		return existing, nil
	}
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}

	entry := models.RecalculationQueueEntry{
		ProfileId:  profileId,
		Reason:     reason,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// DequeueNext returns the queue head without consuming it; the external
// scoring consumer calls MarkRecalculationProcessed when done. The scheduler
// holds no knowledge of the scoring algorithm.
func DequeueNext(ctx context.Context, db *gorm.DB) (*models.RecalculationQueueEntry, error) {
	return models.NextUnprocessedEntry(db.WithContext(ctx))
}

func MarkRecalculationProcessed(ctx context.Context, db *gorm.DB, entryId int) error {
	return models.MarkEntryProcessed(db.WithContext(ctx), entryId, time.Now().UTC())
}

// NotifyRecalculation publishes the Pub/Sub wake-up for a freshly enqueued
// entry. Called after the enqueuing transaction commits; failures are logged
// and swallowed because the queue row is already durable.
func NotifyRecalculation(ctx context.Context, logger *logrus.Logger, entry *models.RecalculationQueueEntry) {
	if entry == nil || !config.RecalcNotifyEnabled() {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	_, err := config.PublishRecalcNotification(ctx, config.RecalcNotification{
		EntryId:       entry.ID,
		ProfileId:     entry.ProfileId,
		Reason:        string(entry.Reason),
		Priority:      string(entry.Priority),
		EnqueuedAt:    entry.EnqueuedAt,
		CorrelationId: correlationId,
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"entry_id":   entry.ID,
			"profile_id": entry.ProfileId,
		}).Warn("recalc notification publish failed: " + err.Error())
	}
}
