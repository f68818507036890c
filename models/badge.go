package models

import (
	"time"
)

// BadgeType: static catalog config (seeded from BadgeCatalog, extendable via admin API)
type BadgeType struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string           `gorm:"uniqueIndex;not null" json:"code"` // e.g., "STREAK_4", "FOUNDING_CREATOR"
	Name        string           `gorm:"not null" json:"name"`
	Description string           `json:"description"`
	IconURL     string           `gorm:"type:text" json:"icon_url"`
	Rarity      string           `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	Threshold   map[string]int64 `gorm:"type:jsonb;serializer:json" json:"threshold"`     // e.g., {"streak": 4}, {"level": 10}
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge: awarded instance. The unique (user, badge) index is the guard
// that absorbs duplicate grant attempts when a satisfied predicate is
// re-evaluated.
type UserBadge struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"not null;uniqueIndex:ux_user_badges_user_badge,priority:1" json:"external_user_id"`
	BadgeTypeID    string    `gorm:"not null;uniqueIndex:ux_user_badges_user_badge,priority:2" json:"badge_type_id"`
	AwardedAt      time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

// BadgeCatalog is the default set seeded at startup. Threshold keys are
// matched against the aggregates in services.badgeAggregates.
var BadgeCatalog = []BadgeType{
	{
		Code:        "FIRST_CHECKIN",
		Name:        "Showed Up",
		Description: "Completed your first weekly check-in",
		Rarity:      "common",
		Threshold:   map[string]int64{"checkins": 1},
	},
	{
		Code:        "STREAK_4",
		Name:        "Habit Forming",
		Description: "Checked in four weeks in a row",
		Rarity:      "rare",
		Threshold:   map[string]int64{"streak": 4},
	},
	{
		Code:        "STREAK_12",
		Name:        "Quarter Grind",
		Description: "Checked in twelve weeks in a row",
		Rarity:      "epic",
		Threshold:   map[string]int64{"streak": 12},
	},
	{
		Code:        "TRIBE_FOUNDER",
		Name:        "Founder",
		Description: "Joined your first tribe",
		Rarity:      "common",
		Threshold:   map[string]int64{"tribes_joined": 1},
	},
	{
		Code:        "WELL_MATCHED",
		Name:        "Well Matched",
		Description: "Formed your first mutual match",
		Rarity:      "rare",
		Threshold:   map[string]int64{"matches_formed": 1},
	},
	{
		Code:        "LEVEL_10",
		Name:        "Double Digits",
		Description: "Reached level 10",
		Rarity:      "epic",
		Threshold:   map[string]int64{"level": 10},
	},
	{
		Code:        "TRUSTED_PEER",
		Name:        "Trusted Peer",
		Description: "Received five peer reviews",
		Rarity:      "rare",
		Threshold:   map[string]int64{"reviews_received": 5},
	},
}
