package models

import "time"

// CheckinStatus distinguishes a real check-in from the sweep's missed
// sentinel. The two share the unique (user, period) slot, so a period can
// resolve only one way.
type CheckinStatus string

const (
	CheckinCompleted CheckinStatus = "COMPLETED"
	CheckinMissed    CheckinStatus = "MISSED"
)

// CheckIn is one user's outcome for one ISO week. PeriodKey looks like
// "2026-W35".
type CheckIn struct {
	ID             string        `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string        `gorm:"not null;uniqueIndex:ux_checkins_user_period,priority:1" json:"external_user_id"`
	PeriodKey      string        `gorm:"not null;uniqueIndex:ux_checkins_user_period,priority:2" json:"period_key"`
	Status         CheckinStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
}
