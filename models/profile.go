package models

import (
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/lessons_backend/utils"
	"gorm.io/gorm"
)

// Per-role profile records. Each role has its own fixed field set instead of
// a loose per-role JSON blob; fields that are not implemented for a role
// simply do not exist on its type.

type TutorProfile struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string    `gorm:"size:255;not null" json:"display_name"`
	Headline    string    `gorm:"size:255" json:"headline"`
	Subjects    []string  `gorm:"serializer:json" json:"subjects"`
	HourlyRate  *int      `json:"hourly_rate"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type ClientProfile struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string    `gorm:"size:255;not null" json:"display_name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type AgentProfile struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName   string    `gorm:"size:255;not null" json:"display_name"`
	AgencyName    string    `gorm:"size:255" json:"agency_name"`
	CommissionBps *int      `json:"commission_bps"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResolveDisplayName is the single precedence rule for externally-sourced
// identity data. Applied once at ingestion, never scattered across call
// sites. Priority order:
//  1. explicit display name chosen in the product
//  2. full name from the identity provider
//  3. "first last" assembled from the provider's split fields
//  4. the local-part of the email address
func ResolveDisplayName(displayName, fullName, firstName, lastName, email string) string {
	if v := strings.TrimSpace(displayName); v != "" {
		return v
	}
	if v := strings.TrimSpace(fullName); v != "" {
		return v
	}
	first := strings.TrimSpace(firstName)
	last := strings.TrimSpace(lastName)
	if first != "" || last != "" {
		return strings.TrimSpace(first + " " + last)
	}
	email = strings.TrimSpace(email)
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

func GetTutorProfileById(tx *gorm.DB, id string) (*TutorProfile, error) {
	var p TutorProfile
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}

func GetClientProfileById(tx *gorm.DB, id string) (*ClientProfile, error) {
	var p ClientProfile
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}

func GetAgentProfileById(tx *gorm.DB, id string) (*AgentProfile, error) {
	var p AgentProfile
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}
