package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus is the lifecycle state of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionGuest       SubscriptionStatus = "GUEST"
	SubscriptionTrial       SubscriptionStatus = "TRIAL"
	SubscriptionActive      SubscriptionStatus = "ACTIVE"
	SubscriptionGracePeriod SubscriptionStatus = "GRACE_PERIOD"
	SubscriptionExpired     SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled   SubscriptionStatus = "CANCELLED"
)

// ProfileTier is the product tier of a user's profile.
type ProfileTier string

const (
	TierStarter ProfileTier = "STARTER"
	TierEngaged ProfileTier = "ENGAGED"
	TierCreator ProfileTier = "CREATOR"
)

// User is the local mirror of an identity-service profile, extended with the
// subscription and ledger state this service owns. Profile columns are kept in
// sync by the profile sync worker; everything else is written only here.
type User struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // identity service's UUID
	Username       string  `gorm:"index;not null" json:"username"`
	Email          string  `json:"email,omitempty"`
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	Bio            *string `json:"bio,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	// Subscription lifecycle
	SubscriptionStatus SubscriptionStatus `gorm:"type:varchar(16);not null;default:'GUEST';index" json:"subscription_status"`
	ProfileTier        ProfileTier        `gorm:"type:varchar(16);not null;default:'STARTER'" json:"profile_tier"`
	TrialStartedAt     *time.Time         `json:"trial_started_at,omitempty"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	GraceStartedAt     *time.Time         `json:"grace_started_at,omitempty"`
	GraceEndsAt        *time.Time         `json:"grace_ends_at,omitempty"`

	// Ledger state. CurrentXP is a signed, spendable balance and may go
	// negative from penalties. Level is derived from LifetimePositiveXP only
	// and never decreases.
	CurrentXP          int64      `gorm:"not null;default:0" json:"current_xp"`
	LifetimePositiveXP int64      `gorm:"not null;default:0" json:"lifetime_positive_xp"`
	Level              int        `gorm:"not null;default:1" json:"level"`
	ReputationScore    float64    `gorm:"not null;default:0" json:"reputation_score"`
	ReviewCount        int64      `gorm:"not null;default:0" json:"review_count"`
	Streak             int        `gorm:"not null;default:0" json:"streak"`
	LastCheckinAt      *time.Time `json:"last_checkin_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
