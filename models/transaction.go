package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ContextSnapshot is the participant/service context captured once at
// settlement time and embedded in every ledger entry of that settlement.
// It is immutable after insert: later profile renames or booking edits must
// never change what the ledger says happened.
type ContextSnapshot struct {
	ServiceName  string       `gorm:"size:255;not null" json:"service_name"`
	Subjects     []string     `gorm:"serializer:json" json:"subjects"`
	SessionDate  time.Time    `gorm:"not null" json:"session_date"`
	LocationMode LocationMode `gorm:"type:enum('Online','InPerson','Hybrid');not null" json:"location_mode"`
	TutorName    string       `gorm:"size:255;not null" json:"tutor_name"`
	ClientName   string       `gorm:"size:255;not null" json:"client_name"`
	AgentName    *string      `gorm:"size:255" json:"agent_name"`
}

// Validate enforces the required-field invariant before any insert.
// A snapshot missing a required field aborts the whole settlement.
func (s ContextSnapshot) Validate() error {
	if s.ServiceName == "" {
		return fmt.Errorf("%w: context missing service name", utils.ErrorInvariantViolation)
	}
	if s.TutorName == "" {
		return fmt.Errorf("%w: context missing tutor name", utils.ErrorInvariantViolation)
	}
	if s.ClientName == "" {
		return fmt.Errorf("%w: context missing client name", utils.ErrorInvariantViolation)
	}
	if s.SessionDate.IsZero() {
		return fmt.Errorf("%w: context missing session date", utils.ErrorInvariantViolation)
	}
	return nil
}

// Equal is the byte-for-byte comparison backing the refund-context invariant.
func (s ContextSnapshot) Equal(o ContextSnapshot) bool {
	if s.ServiceName != o.ServiceName ||
		!s.SessionDate.Equal(o.SessionDate) ||
		s.LocationMode != o.LocationMode ||
		s.TutorName != o.TutorName ||
		s.ClientName != o.ClientName {
		return false
	}
	if (s.AgentName == nil) != (o.AgentName == nil) {
		return false
	}
	if s.AgentName != nil && *s.AgentName != *o.AgentName {
		return false
	}
	if len(s.Subjects) != len(o.Subjects) {
		return false
	}
	for i := range s.Subjects {
		if s.Subjects[i] != o.Subjects[i] {
			return false
		}
	}
	return true
}

// SettlementGroup is the header row for one settlement event (or one
// compensation). All entries of the event hang off the group and are written
// with it in a single transaction, so readers never observe a partial split.
//
// The unique index on checkout_ref is the primary defense against
// at-least-once webhook delivery: a replayed checkout.completed hits a
// duplicate-key error and returns the prior result instead.
type SettlementGroup struct {
	ID          int     `gorm:"primaryKey" json:"id"`
	BookingId   *string `gorm:"size:64;index" json:"booking_id"`
	CheckoutRef string  `gorm:"size:255;not null;uniqueIndex" json:"checkout_ref"`

	Entries       []Transaction `gorm:"foreignKey:GroupId" json:"entries"`
	CorrelationId string        `gorm:"size:64;index" json:"correlation_id"`
	SettledAt     time.Time     `gorm:"not null" json:"settled_at"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

// Transaction is an append-only ledger entry. Never updated except for the
// payout lifecycle fields (status, available_at, payout_ref), never deleted.
type Transaction struct {
	ID        int     `gorm:"primaryKey" json:"id"`
	GroupId   int     `gorm:"index;not null" json:"group_id"`
	ProfileId string  `gorm:"size:64;not null;index" json:"profile_id"`
	BookingId *string `gorm:"size:64;index" json:"booking_id"`

	Kind   TransactionKind `gorm:"type:enum('ClientDebit','TutorPayout','PlatformFee','ReferralCommission','AgentCommission','Refund');not null;index" json:"kind"`
	Amount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`

	Status      TransactionStatus `gorm:"type:enum('Pending','Clearing','Available','Failed');not null;index" json:"status"`
	AvailableAt *time.Time        `json:"available_at"`

	// Gateway references. ChargeRef ties the entry to the captured charge;
	// PayoutRef is attached once the gateway creates the payout and is the
	// lookup key for compensation.
	ChargeRef string  `gorm:"size:255;index" json:"charge_ref"`
	PayoutRef *string `gorm:"size:255;index" json:"payout_ref"`

	Context ContextSnapshot `gorm:"embedded;embeddedPrefix:ctx_" json:"context"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetSettlementGroupByCheckoutRef loads a prior settlement with its entries.
func GetSettlementGroupByCheckoutRef(tx *gorm.DB, checkoutRef string) (*SettlementGroup, error) {
	var group SettlementGroup
	err := tx.Preload("Entries").Where("checkout_ref = ?", checkoutRef).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &group, nil
}

// GetTransactionByPayoutRef finds the original payout-bearing entry for a
// gateway payout reference. Refund entries are excluded so that a refund's
// own reference can never satisfy a later compensation lookup.
func GetTransactionByPayoutRef(tx *gorm.DB, payoutRef string) (*Transaction, error) {
	var txn Transaction
	err := tx.Where("payout_ref = ? AND kind <> ?", payoutRef, TransactionKindRefund).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// GetRefundByPayoutRef returns the Refund already written for a payout
// reference, if any. Used for compensation idempotency.
func GetRefundByPayoutRef(tx *gorm.DB, payoutRef string) (*Transaction, error) {
	var txn Transaction
	err := tx.Where("payout_ref = ? AND kind = ?", payoutRef, TransactionKindRefund).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func GetTransactionsByProfileId(tx *gorm.DB, profileId string, limit, offset int) ([]Transaction, error) {
	var txns []Transaction
	q := tx.Where("profile_id = ?", profileId).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&txns).Error
	return txns, err
}

func GetTransactionsByBookingId(tx *gorm.DB, bookingId string) ([]Transaction, error) {
	var txns []Transaction
	err := tx.Where("booking_id = ?", bookingId).Order("id ASC").Find(&txns).Error
	return txns, err
}

// Ledger immutability guardrails:
// - transactions are append-only; only status/available_at/payout_ref move.
// - settlement groups are never deleted; compensation inserts, it never edits.
