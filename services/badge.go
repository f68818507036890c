package services

import (
	"log"

	"tribe-engagement-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB *gorm.DB
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db}
}

// badgeAggregates are the stats badge thresholds are matched against.
type badgeAggregates struct {
	lifetimeXP      int64
	level           int64
	streak          int64
	checkins        int64
	tribesJoined    int64
	matchesFormed   int64
	reviewsReceived int64
	loadedCounts    bool
}

// EvaluateTx re-checks every catalog threshold for the user and grants each
// newly satisfied badge exactly once. Runs inside the caller's transaction so
// grant and ledger update land together. Returns the names of new badges.
func (s *BadgeService) EvaluateTx(tx *gorm.DB, user *models.User) ([]string, error) {
	var catalog []models.BadgeType
	if err := tx.Find(&catalog).Error; err != nil {
		return nil, err
	}

	agg := badgeAggregates{
		lifetimeXP: user.LifetimePositiveXP,
		level:      int64(user.Level),
		streak:     int64(user.Streak),
	}

	var awarded []string
	for _, badge := range catalog {
		met, err := s.meetsThreshold(tx, user.ExternalUserID, &agg, badge.Threshold)
		if err != nil {
			return nil, err
		}
		if !met {
			continue
		}
		grant := models.UserBadge{
			ID:             uuid.NewString(),
			ExternalUserID: user.ExternalUserID,
			BadgeTypeID:    badge.ID,
		}
		// The unique (user, badge) index absorbs re-grants of an already
		// satisfied predicate.
		ins := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "badge_type_id"}},
			DoNothing: true,
		}).Create(&grant)
		if ins.Error != nil {
			return nil, ins.Error
		}
		if ins.RowsAffected > 0 {
			awarded = append(awarded, badge.Name)
			log.Printf("🎖️ Badge awarded: %s → %s", badge.Name, user.ExternalUserID)
		}
	}
	return awarded, nil
}

func (s *BadgeService) meetsThreshold(tx *gorm.DB, externalUserID string, agg *badgeAggregates, req map[string]int64) (bool, error) {
	for key, required := range req {
		var have int64
		switch key {
		case "lifetime_xp":
			have = agg.lifetimeXP
		case "level":
			have = agg.level
		case "streak":
			have = agg.streak
		case "checkins", "tribes_joined", "matches_formed", "reviews_received":
			if !agg.loadedCounts {
				if err := s.loadCounts(tx, externalUserID, agg); err != nil {
					return false, err
				}
			}
			switch key {
			case "checkins":
				have = agg.checkins
			case "tribes_joined":
				have = agg.tribesJoined
			case "matches_formed":
				have = agg.matchesFormed
			case "reviews_received":
				have = agg.reviewsReceived
			}
		default:
			// Unknown key in a hand-edited catalog row: never satisfied.
			return false, nil
		}
		if have < required {
			return false, nil
		}
	}
	return len(req) > 0, nil
}

// loadCounts lazily fetches the count-based aggregates; most thresholds only
// need the fields already on the user row.
func (s *BadgeService) loadCounts(tx *gorm.DB, externalUserID string, agg *badgeAggregates) error {
	if err := tx.Model(&models.CheckIn{}).
		Where("external_user_id = ? AND status = ?", externalUserID, models.CheckinCompleted).
		Count(&agg.checkins).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.TribeMember{}).
		Where("external_user_id = ? AND is_banned = ?", externalUserID, false).
		Count(&agg.tribesJoined).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.MatchDecision{}).
		Where("initiator_id = ? AND status = ?", externalUserID, models.MatchAccepted).
		Count(&agg.matchesFormed).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.PeerReview{}).
		Where("target_id = ?", externalUserID).
		Count(&agg.reviewsReceived).Error; err != nil {
		return err
	}
	agg.loadedCounts = true
	return nil
}

// SeedCatalog inserts the default badge catalog, skipping codes that already
// exist. Called once at startup.
func (s *BadgeService) SeedCatalog() error {
	for _, badge := range models.BadgeCatalog {
		badge.ID = uuid.NewString()
		ins := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&badge)
		if ins.Error != nil {
			return ins.Error
		}
	}
	return nil
}

// CreateBadgeType adds a catalog entry (admin surface). Duplicate codes are a
// Conflict.
func (s *BadgeService) CreateBadgeType(badge *models.BadgeType) error {
	if badge.Code == "" || badge.Name == "" || len(badge.Threshold) == 0 {
		return ErrValidation
	}
	badge.ID = uuid.NewString()
	ins := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(badge)
	if ins.Error != nil {
		return ins.Error
	}
	if ins.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// UserBadges returns the user's grants joined with their catalog rows.
func (s *BadgeService) UserBadges(externalUserID string) ([]map[string]interface{}, error) {
	var grants []models.UserBadge
	if err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("awarded_at DESC").
		Find(&grants).Error; err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(grants))
	for _, g := range grants {
		var badge models.BadgeType
		if err := s.DB.First(&badge, "id = ?", g.BadgeTypeID).Error; err != nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"id":          g.ID,
			"code":        badge.Code,
			"name":        badge.Name,
			"description": badge.Description,
			"icon_url":    badge.IconURL,
			"rarity":      badge.Rarity,
			"awarded_at":  g.AwardedAt,
		})
	}
	return out, nil
}
