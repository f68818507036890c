package models

import "time"

// EventKind is the closed set of XP-affecting occurrences. Adding a kind means
// adding a constant here and a delta in the ledger config: there is no
// string-matching fallback.
type EventKind string

const (
	EventCheckinCompleted EventKind = "CHECKIN_COMPLETED"
	EventCheckinMissed    EventKind = "CHECKIN_MISSED"
	EventFeedbackGiven    EventKind = "FEEDBACK_GIVEN"
	EventPeerReviewed     EventKind = "PEER_REVIEWED"
	EventTribeJoined      EventKind = "TRIBE_JOINED"
	EventMatchFormed      EventKind = "MATCH_FORMED"
	EventXPGranted        EventKind = "XP_GRANTED"
)

// LedgerEvent is an append-only record of one XP delta. The unique
// (user, idempotency key) index is what makes retries and concurrent duplicate
// submissions inert: application code never check-then-inserts around it.
type LedgerEvent struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"not null;uniqueIndex:ux_ledger_events_user_key,priority:1" json:"external_user_id"`
	Kind           EventKind `gorm:"type:varchar(32);not null;index" json:"kind"`
	Delta          int64     `gorm:"not null" json:"delta"`
	IdempotencyKey string    `gorm:"not null;uniqueIndex:ux_ledger_events_user_key,priority:2" json:"idempotency_key"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
