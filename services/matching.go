package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"tribe-engagement-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchDecisionInput is the accepted decision verbs.
const (
	DecisionLike = "LIKE"
	DecisionPass = "PASS"
)

// MatchResult reports one decision's outcome. Applied is false when this
// ordered pair had already been decided: repeats are benign.
type MatchResult struct {
	Status  models.MatchStatus `json:"status"`
	IsMatch bool               `json:"is_match"`
	Applied bool               `json:"applied"`
}

type MatchService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Now    func() time.Time
}

func NewMatchService(db *gorm.DB, ledger *LedgerService) *MatchService {
	return &MatchService{DB: db, Ledger: ledger, Now: time.Now}
}

// RecordDecision runs the reciprocal like/pass protocol for one directed
// pair. Both user rows are locked in canonical id order before the reverse
// edge is read, so two users deciding on each other near-simultaneously are
// serialized: neither the double-PENDING nor the half-ACCEPTED state can be
// committed.
func (s *MatchService) RecordDecision(actingID, targetID, decision string) (*MatchResult, error) {
	if decision != DecisionLike && decision != DecisionPass {
		return nil, fmt.Errorf("decision must be LIKE or PASS: %w", ErrValidation)
	}
	if actingID == targetID {
		return nil, fmt.Errorf("cannot decide on yourself: %w", ErrConflict)
	}

	var res *MatchResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		acting, _, err := s.lockPair(tx, actingID, targetID)
		if err != nil {
			return err
		}

		ent := ResolveEntitlements(acting, s.Now())
		if !ent.CanAccessMatchingDirectory {
			return Forbidden("the matching directory requires an active subscription or trial")
		}
		if ent.IsInGracePeriod {
			return Forbidden("matching is read-only during the grace period")
		}

		// An already-decided ordered pair is a benign no-op.
		var existing models.MatchDecision
		err = tx.Where("initiator_id = ? AND target_id = ?", actingID, targetID).
			First(&existing).Error
		if err == nil {
			res = &MatchResult{Status: existing.Status, IsMatch: existing.Status == models.MatchAccepted, Applied: false}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if decision == DecisionPass {
			return s.insertForward(tx, actingID, targetID, models.MatchRejected, &res)
		}

		var reverse models.MatchDecision
		err = withRowLock(tx).Where("initiator_id = ? AND target_id = ?", targetID, actingID).
			First(&reverse).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Unrequited like, awaiting the other side.
			return s.insertForward(tx, actingID, targetID, models.MatchPending, &res)
		case err != nil:
			return err
		}

		switch reverse.Status {
		case models.MatchRejected:
			return s.insertForward(tx, actingID, targetID, models.MatchPending, &res)
		case models.MatchPending:
			// The reciprocal event: both directions reach ACCEPTED in this
			// transaction or not at all.
			if err := tx.Model(&reverse).Update("status", models.MatchAccepted).Error; err != nil {
				return err
			}
			if err := s.insertForward(tx, actingID, targetID, models.MatchAccepted, &res); err != nil {
				return err
			}
			if res.Applied {
				res.IsMatch = true
				if err := s.creditMatch(tx, actingID, targetID, reverse.ID); err != nil {
					return err
				}
			}
			return nil
		case models.MatchAccepted:
			// Should not recur under correct sequencing; complete the forward
			// side for symmetry.
			if err := s.insertForward(tx, actingID, targetID, models.MatchAccepted, &res); err != nil {
				return err
			}
			res.IsMatch = true
			return nil
		}
		return fmt.Errorf("unexpected reverse status %q", reverse.Status)
	})
	if err != nil {
		return nil, err
	}
	if res.IsMatch && res.Applied {
		log.Printf("💞 Mutual match: %s ↔ %s", actingID, targetID)
	}
	return res, nil
}

// insertForward creates the directed record, relying on the unique
// (initiator, target) index. A lost insert race re-reads and reports the
// stored state as a benign repeat.
func (s *MatchService) insertForward(tx *gorm.DB, actingID, targetID string, status models.MatchStatus, res **MatchResult) error {
	record := models.MatchDecision{
		ID:          uuid.NewString(),
		InitiatorID: actingID,
		TargetID:    targetID,
		Status:      status,
	}
	ins := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "initiator_id"}, {Name: "target_id"}},
		DoNothing: true,
	}).Create(&record)
	if ins.Error != nil {
		return ins.Error
	}
	if ins.RowsAffected == 0 {
		var stored models.MatchDecision
		if err := tx.Where("initiator_id = ? AND target_id = ?", actingID, targetID).
			First(&stored).Error; err != nil {
			return err
		}
		*res = &MatchResult{Status: stored.Status, IsMatch: stored.Status == models.MatchAccepted, Applied: false}
		return nil
	}
	*res = &MatchResult{Status: status, Applied: true}
	return nil
}

// creditMatch applies the match-formed ledger event to both sides, keyed by
// the two directed record ids.
func (s *MatchService) creditMatch(tx *gorm.DB, actingID, targetID, reverseID string) error {
	actingUser, err := lockUser(tx, actingID)
	if err != nil {
		return err
	}
	if _, err := s.Ledger.ApplyEventTx(tx, actingUser, models.EventMatchFormed, "match:"+reverseID+":a"); err != nil {
		return err
	}
	targetUser, err := lockUser(tx, targetID)
	if err != nil {
		return err
	}
	_, err = s.Ledger.ApplyEventTx(tx, targetUser, models.EventMatchFormed, "match:"+reverseID+":b")
	return err
}

// lockPair locks both user rows in ascending external id order, returning
// (acting, target). Consistent lock order is what prevents deadlock and
// serializes concurrent reciprocal decisions for the same pair.
func (s *MatchService) lockPair(tx *gorm.DB, actingID, targetID string) (*models.User, *models.User, error) {
	first, second := actingID, targetID
	if second < first {
		first, second = second, first
	}
	a, err := lockUser(tx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := lockUser(tx, second)
	if err != nil {
		return nil, nil, err
	}
	if a.ExternalUserID == actingID {
		return a, b, nil
	}
	return b, a, nil
}

// ListDirectory returns candidate users the caller has not yet decided on.
// Grace-period users may browse; only decisions are gated.
func (s *MatchService) ListDirectory(externalUserID string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var acting models.User
	err := s.DB.Where("external_user_id = ?", externalUserID).First(&acting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", externalUserID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	ent := ResolveEntitlements(&acting, s.Now())
	if !ent.CanAccessMatchingDirectory {
		return nil, Forbidden("the matching directory requires an active subscription or trial")
	}

	var users []models.User
	err = s.DB.
		Where("external_user_id <> ?", externalUserID).
		Where("external_user_id NOT IN (?)",
			s.DB.Model(&models.MatchDecision{}).
				Select("target_id").
				Where("initiator_id = ?", externalUserID)).
		Order("created_at DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
