package models

import (
	"errors"
	"time"

	"github.com/mmdatafocus/lessons_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecalculationQueueEntry is one pending unit of reputation work.
// At most one unprocessed entry exists per profile; duplicate enqueues merge
// into the existing row (see workflow.EnqueueRecalculation). Rows are kept
// after processing for audit, never deleted.
type RecalculationQueueEntry struct {
	ID          int            `gorm:"primaryKey" json:"id"`
	ProfileId   string         `gorm:"size:64;not null;index" json:"profile_id"`
	Reason      RecalcReason   `gorm:"size:64;not null" json:"reason"`
	Priority    RecalcPriority `gorm:"type:enum('Normal','High');not null;default:'Normal'" json:"priority"`
	EnqueuedAt  time.Time      `gorm:"not null;index" json:"enqueued_at"`
	ProcessedAt *time.Time     `gorm:"index" json:"processed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetUnprocessedEntryForUpdate reads the profile's unprocessed entry under a
// row lock, for the merge-on-enqueue read-check-update.
func GetUnprocessedEntryForUpdate(tx *gorm.DB, profileId string) (*RecalculationQueueEntry, error) {
	var entry RecalculationQueueEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("profile_id = ? AND processed_at IS NULL", profileId).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// NextUnprocessedEntry returns the head of the queue: high priority first,
// then first-enqueued-first-served. Merges never reset enqueued_at, so a
// long-waiting entry keeps its place within its tier.
func NextUnprocessedEntry(tx *gorm.DB) (*RecalculationQueueEntry, error) {
	var entry RecalculationQueueEntry
	err := tx.Where("processed_at IS NULL").
		Order("(priority = 'High') DESC, enqueued_at ASC, id ASC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// MarkEntryProcessed is called by the external scoring consumer once the
// profile's score has been recomputed.
func MarkEntryProcessed(tx *gorm.DB, entryId int, processedAt time.Time) error {
	res := tx.Model(&RecalculationQueueEntry{}).
		Where("id = ? AND processed_at IS NULL", entryId).
		Update("processed_at", processedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
