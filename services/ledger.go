package services

import (
	"fmt"
	"log"
	"time"

	"tribe-engagement-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerConfig holds the tunable magnitudes: the delta per event kind and the
// lifetime-XP thresholds of the level curve. Deltas and thresholds are
// configuration, not algorithm: tests and deployments may swap them.
type LedgerConfig struct {
	Deltas map[models.EventKind]int64

	// LevelThresholds[i] is the minimum LifetimePositiveXP for level i+2;
	// level 1 starts at zero. Must be strictly increasing.
	LevelThresholds []int64
}

var DefaultLedgerConfig = LedgerConfig{
	Deltas: map[models.EventKind]int64{
		models.EventCheckinCompleted: 50,
		models.EventCheckinMissed:    -30,
		models.EventFeedbackGiven:    15,
		models.EventPeerReviewed:     25,
		models.EventTribeJoined:      20,
		models.EventMatchFormed:      40,
	},
	LevelThresholds: []int64{
		100, 250, 450, 700, 1000, 1350, 1750, 2200, 2700, // levels 2–10
		3300, 4000, 4800, 5700, 6700, // levels 11–15
	},
}

// levelFor maps lifetime-positive XP to a level through the threshold table.
func (c LedgerConfig) levelFor(lifetimeXP int64) int {
	level := 1
	for _, min := range c.LevelThresholds {
		if lifetimeXP < min {
			break
		}
		level++
	}
	return level
}

// LedgerResult reports the outcome of one apply-event call. Applied is false
// when the idempotency key had already been used: the rest of the fields then
// describe the unchanged prior state.
type LedgerResult struct {
	Kind         models.EventKind `json:"kind"`
	Delta        int64            `json:"delta"`
	NewCurrentXP int64            `json:"new_current_xp"`
	NewLevel     int              `json:"new_level"`
	NewBadges    []string         `json:"new_badges,omitempty"`
	Applied      bool             `json:"applied"`
}

type LedgerService struct {
	DB     *gorm.DB
	Config LedgerConfig
	Badges *BadgeService
	Now    func() time.Time
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{
		DB:     db,
		Config: DefaultLedgerConfig,
		Badges: NewBadgeService(db),
		Now:    time.Now,
	}
}

// ApplyEvent records one XP-affecting occurrence for a user, exactly once per
// idempotency key. A duplicate key is a benign no-op returning the prior
// state, since callers may legitimately retry.
func (s *LedgerService) ApplyEvent(externalUserID string, kind models.EventKind, idempotencyKey string) (*LedgerResult, error) {
	delta, ok := s.Config.Deltas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q: %w", kind, ErrValidation)
	}
	var res *LedgerResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}
		res, err = s.applyTx(tx, user, kind, delta, idempotencyKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyEventTx is ApplyEvent for callers that already hold a locked user row
// inside their own transaction (admission, matching, the sweep).
func (s *LedgerService) ApplyEventTx(tx *gorm.DB, user *models.User, kind models.EventKind, idempotencyKey string) (*LedgerResult, error) {
	delta, ok := s.Config.Deltas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q: %w", kind, ErrValidation)
	}
	return s.applyTx(tx, user, kind, delta, idempotencyKey)
}

// applyTx inserts the event and folds its delta into the locked user row.
// The unique (user, idempotency key) index on ledger_events is the only
// duplicate guard: there is no check-then-insert to race against.
func (s *LedgerService) applyTx(tx *gorm.DB, user *models.User, kind models.EventKind, delta int64, idempotencyKey string) (*LedgerResult, error) {
	event := models.LedgerEvent{
		ID:             uuid.NewString(),
		ExternalUserID: user.ExternalUserID,
		Kind:           kind,
		Delta:          delta,
		IdempotencyKey: idempotencyKey,
	}
	ins := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&event)
	if ins.Error != nil {
		return nil, ins.Error
	}
	if ins.RowsAffected == 0 {
		return &LedgerResult{
			Kind:         kind,
			Delta:        0,
			NewCurrentXP: user.CurrentXP,
			NewLevel:     user.Level,
			Applied:      false,
		}, nil
	}

	user.CurrentXP += delta
	if delta > 0 {
		user.LifetimePositiveXP += delta
	}
	// Level follows lifetime-positive XP only and may never go down, even if
	// CurrentXP is spent or penalized below zero.
	if newLevel := s.Config.levelFor(user.LifetimePositiveXP); newLevel > user.Level {
		user.Level = newLevel
	}
	if err := tx.Save(user).Error; err != nil {
		return nil, err
	}

	newBadges, err := s.Badges.EvaluateTx(tx, user)
	if err != nil {
		return nil, err
	}

	log.Printf("📒 Ledger: %s %+d → xp=%d lvl=%d (key=%s)",
		user.ExternalUserID, delta, user.CurrentXP, user.Level, idempotencyKey)

	return &LedgerResult{
		Kind:         kind,
		Delta:        delta,
		NewCurrentXP: user.CurrentXP,
		NewLevel:     user.Level,
		NewBadges:    newBadges,
		Applied:      true,
	}, nil
}

// CompleteCheckin records the weekly ritual check-in for the current ISO week.
// The unique (user, period) slot on check-ins means a week can resolve only
// once: a second check-in, or a week already swept as missed, is a Conflict.
func (s *LedgerService) CompleteCheckin(externalUserID string) (*LedgerResult, error) {
	now := s.Now()
	periodKey := ISOWeekKey(now)

	var res *LedgerResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}

		checkin := models.CheckIn{
			ID:             uuid.NewString(),
			ExternalUserID: externalUserID,
			PeriodKey:      periodKey,
			Status:         models.CheckinCompleted,
		}
		ins := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "period_key"}},
			DoNothing: true,
		}).Create(&checkin)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return fmt.Errorf("check-in for %s already resolved: %w", periodKey, ErrConflict)
		}

		// Streak continues only when the previous ISO week was completed.
		prevKey := ISOWeekKey(now.AddDate(0, 0, -7))
		var prevCompleted int64
		if err := tx.Model(&models.CheckIn{}).
			Where("external_user_id = ? AND period_key = ? AND status = ?",
				externalUserID, prevKey, models.CheckinCompleted).
			Count(&prevCompleted).Error; err != nil {
			return err
		}
		if prevCompleted > 0 {
			user.Streak++
		} else {
			user.Streak = 1
		}
		user.LastCheckinAt = &now

		res, err = s.applyTx(tx, user, models.EventCheckinCompleted,
			s.Config.Deltas[models.EventCheckinCompleted], "checkin:"+periodKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RecordFeedback awards XP for a feedback submission, keyed by the feedback id
// so a retried submission cannot double-award.
func (s *LedgerService) RecordFeedback(externalUserID, feedbackID string) (*LedgerResult, error) {
	if feedbackID == "" {
		return nil, fmt.Errorf("feedback id required: %w", ErrValidation)
	}
	return s.ApplyEvent(externalUserID, models.EventFeedbackGiven, "feedback:"+feedbackID)
}

// RecordPeerReview stores one reviewer→target review and recomputes the
// target's reputation as the arithmetic mean over all their reviews. O(n) per
// review, which is fine at the expected review counts.
func (s *LedgerService) RecordPeerReview(reviewerID, targetID string, score int, comment string) (*LedgerResult, error) {
	if reviewerID == targetID {
		return nil, fmt.Errorf("cannot review yourself: %w", ErrConflict)
	}
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("score must be 1..5: %w", ErrValidation)
	}

	var res *LedgerResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var reviewer models.User
		if err := tx.Where("external_user_id = ?", reviewerID).First(&reviewer).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("reviewer %s: %w", reviewerID, ErrNotFound)
			}
			return err
		}
		target, err := lockUser(tx, targetID)
		if err != nil {
			return err
		}

		review := models.PeerReview{
			ID:         uuid.NewString(),
			ReviewerID: reviewerID,
			TargetID:   targetID,
			Score:      score,
			Comment:    comment,
		}
		ins := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reviewer_id"}, {Name: "target_id"}},
			DoNothing: true,
		}).Create(&review)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return fmt.Errorf("already reviewed this user: %w", ErrConflict)
		}

		var agg struct {
			Mean  float64
			Count int64
		}
		if err := tx.Model(&models.PeerReview{}).
			Select("AVG(score) AS mean, COUNT(*) AS count").
			Where("target_id = ?", targetID).
			Scan(&agg).Error; err != nil {
			return err
		}
		target.ReputationScore = agg.Mean
		target.ReviewCount = agg.Count

		res, err = s.applyTx(tx, target, models.EventPeerReviewed,
			s.Config.Deltas[models.EventPeerReviewed], "review:"+review.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GrantXP is the admin override: an arbitrary delta outside the fixed event
// table, keyed by a fresh uuid so every grant is its own logical occurrence.
func (s *LedgerService) GrantXP(externalUserID string, amount int64, reason string) (*LedgerResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("amount must be non-zero: %w", ErrValidation)
	}
	var res *LedgerResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}
		res, err = s.applyTx(tx, user, models.EventXPGranted, amount, "grant:"+uuid.NewString())
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🛠️  Admin XP grant: %s %+d (reason: %s)", externalUserID, amount, reason)
	return res, nil
}

// RecentEvents returns the newest ledger events for a user, for the ledger
// read endpoint.
func (s *LedgerService) RecentEvents(externalUserID string, limit int) ([]models.LedgerEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var events []models.LedgerEvent
	err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
