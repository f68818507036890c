package models

import "time"

// MatchStatus is the state of one directed like/pass record.
type MatchStatus string

const (
	MatchPending  MatchStatus = "PENDING"  // unrequited like, awaiting the other side
	MatchRejected MatchStatus = "REJECTED" // pass
	MatchAccepted MatchStatus = "ACCEPTED" // both sides liked; immutable once reciprocal
)

// MatchDecision is one directed edge of the reciprocal matching protocol.
// At most one record exists per ordered (initiator, target) pair; the unique
// index is the correctness mechanism under concurrent decisions.
type MatchDecision struct {
	ID          string      `gorm:"primaryKey;type:uuid" json:"id"`
	InitiatorID string      `gorm:"not null;uniqueIndex:ux_match_decisions_pair,priority:1" json:"initiator_id"`
	TargetID    string      `gorm:"not null;uniqueIndex:ux_match_decisions_pair,priority:2;index" json:"target_id"`
	Status      MatchStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}
