package models

import (
	"errors"
	"time"

	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Booking is owned by the booking domain. The settlement core only reads it,
// under a row lock while settling, and never mutates it. A booking may be
// deleted later by its owner; ledger entries referencing it then dangle,
// which is expected and tolerated.
type Booking struct {
	ID         string  `gorm:"primaryKey;size:64" json:"id"`
	TutorId    string  `gorm:"size:64;not null;index" json:"tutor_id" binding:"required"`
	ClientId   string  `gorm:"size:64;not null;index" json:"client_id" binding:"required"`
	AgentId    *string `gorm:"size:64;index" json:"agent_id"`
	ReferrerId *string `gorm:"size:64;index" json:"referrer_id"`

	ServiceName     string          `gorm:"size:255;not null" json:"service_name"`
	Subjects        []string        `gorm:"serializer:json" json:"subjects"`
	StartTime       time.Time       `gorm:"not null;index" json:"start_time"`
	LocationMode    LocationMode    `gorm:"type:enum('Online','InPerson','Hybrid');not null;default:'Online'" json:"location_mode"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	SessionKind     SessionKind     `gorm:"type:enum('Paid','FreeHelp');not null;default:'Paid'" json:"session_kind"`
	DurationMinutes int             `gorm:"not null;default:60" json:"duration_minutes"`

	// CheckoutRef is the gateway checkout/session id, supplied at creation
	// time for paid bookings. It is the settlement idempotency key.
	CheckoutRef string `gorm:"size:255;index" json:"checkout_ref"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetBookingForUpdate reads the booking under an exclusive row lock.
// Must be called inside a transaction; the lock is held until commit and
// serializes concurrent settlement attempts for the same booking.
func GetBookingForUpdate(tx *gorm.DB, bookingId string) (*Booking, error) {
	var booking Booking
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", bookingId).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func GetBookingById(tx *gorm.DB, bookingId string) (*Booking, error) {
	var booking Booking
	err := tx.Where("id = ?", bookingId).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &booking, nil
}
