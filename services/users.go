package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"tribe-engagement-system/models"

	"gorm.io/gorm"
)

// Trial and grace lengths are env-tunable in main; these are the defaults.
const (
	DefaultTrialDuration = 14 * 24 * time.Hour
	DefaultGraceDuration = 7 * 24 * time.Hour
)

type UserService struct {
	DB            *gorm.DB
	TrialDuration time.Duration
	GraceDuration time.Duration
	Now           func() time.Time
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		DB:            db,
		TrialDuration: DefaultTrialDuration,
		GraceDuration: DefaultGraceDuration,
		Now:           time.Now,
	}
}

// GetByExternalID fetches the local user mirror.
func (s *UserService) GetByExternalID(externalUserID string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("external_user_id = ?", externalUserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", externalUserID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Entitlements resolves the capability set for a user as of now.
func (s *UserService) Entitlements(externalUserID string) (*Entitlements, error) {
	user, err := s.GetByExternalID(externalUserID)
	if err != nil {
		return nil, err
	}
	ent := ResolveEntitlements(user, s.Now())
	return &ent, nil
}

// StartTrial moves a guest onto the trial. Only guests get a trial; a second
// trial for the same user is a Conflict.
func (s *UserService) StartTrial(externalUserID string) (*models.User, error) {
	var out *models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}
		if user.SubscriptionStatus != models.SubscriptionGuest {
			return fmt.Errorf("trial is only available to guests (status %s): %w",
				user.SubscriptionStatus, ErrConflict)
		}
		if user.TrialStartedAt != nil {
			return fmt.Errorf("trial already used: %w", ErrConflict)
		}
		now := s.Now()
		ends := now.Add(s.TrialDuration)
		user.SubscriptionStatus = models.SubscriptionTrial
		user.TrialStartedAt = &now
		user.TrialEndsAt = &ends
		if err := tx.Save(user).Error; err != nil {
			return err
		}
		out = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🚀 Trial started: %s until %s", externalUserID, out.TrialEndsAt.Format(time.RFC3339))
	return out, nil
}

// ActivateSubscription is the payment-webhook transition: whatever the prior
// state, the user becomes ACTIVE and any grace window is cleared. Safe to
// re-deliver.
func (s *UserService) ActivateSubscription(externalUserID string) (*models.User, error) {
	var out *models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}
		user.SubscriptionStatus = models.SubscriptionActive
		user.GraceStartedAt = nil
		user.GraceEndsAt = nil
		if err := tx.Save(user).Error; err != nil {
			return err
		}
		out = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("💳 Subscription active: %s", externalUserID)
	return out, nil
}

// CancelSubscription opens the grace window for an active subscriber.
// Repeated cancellation webhooks for a user already in or past grace are
// no-ops.
func (s *UserService) CancelSubscription(externalUserID string) (*models.User, error) {
	var out *models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}
		if user.SubscriptionStatus != models.SubscriptionActive {
			out = user
			return nil
		}
		now := s.Now()
		ends := now.Add(s.GraceDuration)
		user.SubscriptionStatus = models.SubscriptionGracePeriod
		user.GraceStartedAt = &now
		user.GraceEndsAt = &ends
		if err := tx.Save(user).Error; err != nil {
			return err
		}
		out = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("📉 Subscription cancelled: %s, grace until %v", externalUserID, out.GraceEndsAt)
	return out, nil
}

// ExpireLapsedWindows flips users whose trial or grace window has passed to
// EXPIRED. Run daily by the scheduler; each batch is one UPDATE per kind.
func (s *UserService) ExpireLapsedWindows() (int64, error) {
	now := s.Now()

	trial := s.DB.Model(&models.User{}).
		Where("subscription_status = ? AND trial_ends_at < ?", models.SubscriptionTrial, now).
		Update("subscription_status", models.SubscriptionExpired)
	if trial.Error != nil {
		return 0, trial.Error
	}

	grace := s.DB.Model(&models.User{}).
		Where("subscription_status = ? AND grace_ends_at < ?", models.SubscriptionGracePeriod, now).
		Update("subscription_status", models.SubscriptionExpired)
	if grace.Error != nil {
		return trial.RowsAffected, grace.Error
	}

	total := trial.RowsAffected + grace.RowsAffected
	if total > 0 {
		log.Printf("⌛ Expired %d lapsed subscription window(s)", total)
	}
	return total, nil
}
