package models

import "time"

// PeerReview is one user's score of another. One review per (reviewer, target)
// pair; the target's ReputationScore is the arithmetic mean over all of their
// reviews.
type PeerReview struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	ReviewerID string    `gorm:"not null;uniqueIndex:ux_peer_reviews_pair,priority:1" json:"reviewer_id"`
	TargetID   string    `gorm:"not null;uniqueIndex:ux_peer_reviews_pair,priority:2;index" json:"target_id"`
	Score      int       `gorm:"not null" json:"score"` // 1..5
	Comment    string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
