package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tribe-engagement-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TribeService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Now    func() time.Time
}

func NewTribeService(db *gorm.DB, ledger *LedgerService) *TribeService {
	return &TribeService{DB: db, Ledger: ledger, Now: time.Now}
}

type CreateTribeInput struct {
	Name          string  `json:"name" validate:"required"`
	Description   string  `json:"description"`
	MaxMembers    int     `json:"max_members"`
	IsPaid        bool    `json:"is_paid"`
	OpenJoin      bool    `json:"open_join"`
	MinLevel      int     `json:"min_level"`
	MinReputation float64 `json:"min_reputation"`
	MinStreak     int     `json:"min_streak"`
}

// CreateTribe creates a tribe and seats the creator as its ADMIN member in
// the same transaction.
func (s *TribeService) CreateTribe(creatorID string, input CreateTribeInput) (*models.Tribe, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("tribe name required: %w", ErrValidation)
	}
	if input.MaxMembers <= 0 {
		input.MaxMembers = 20
	}

	var tribe *models.Tribe
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		creator, err := lockUser(tx, creatorID)
		if err != nil {
			return err
		}
		ent := ResolveEntitlements(creator, s.Now())
		if !ent.CanCreateTribes {
			return Forbidden("creating tribes requires an active subscription or trial")
		}
		if input.IsPaid && !ent.CanMonetizeTribe {
			return Forbidden("monetized tribes require the creator tier or an active subscription")
		}

		tribeSlug := slug.Make(name)
		var clash int64
		if err := tx.Model(&models.Tribe{}).Where("slug = ?", tribeSlug).Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			tribeSlug = tribeSlug + "-" + uuid.NewString()[:8]
		}

		tribe = &models.Tribe{
			ID:            uuid.NewString(),
			Slug:          tribeSlug,
			Name:          name,
			Description:   input.Description,
			CreatorID:     creatorID,
			MaxMembers:    input.MaxMembers,
			IsPaid:        input.IsPaid,
			OpenJoin:      input.OpenJoin,
			MinLevel:      input.MinLevel,
			MinReputation: input.MinReputation,
			MinStreak:     input.MinStreak,
		}
		if err := tx.Create(tribe).Error; err != nil {
			return err
		}
		member := models.TribeMember{
			ID:             uuid.NewString(),
			TribeID:        tribe.ID,
			ExternalUserID: creatorID,
			Role:           models.RoleAdmin,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🏕️ Tribe created: %s (%s) by %s", tribe.Name, tribe.Slug, creatorID)
	return tribe, nil
}

// Apply creates a PENDING application. The partial unique index on pending
// (tribe, user) pairs closes the duplicate-application race; an existing
// membership is a Conflict.
func (s *TribeService) Apply(externalUserID, tribeID, message string) (*models.TribeApplication, error) {
	var app *models.TribeApplication
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}
		ent := ResolveEntitlements(user, s.Now())
		if !ent.CanJoinTribes {
			return Forbidden("joining tribes requires an active subscription or trial")
		}

		tribe, err := s.getTribe(tx, tribeID)
		if err != nil {
			return err
		}
		if reason := admissionShortfall(tribe, user); reason != "" {
			return Forbidden("%s", reason)
		}

		var member int64
		if err := tx.Model(&models.TribeMember{}).
			Where("tribe_id = ? AND external_user_id = ?", tribeID, externalUserID).
			Count(&member).Error; err != nil {
			return err
		}
		if member > 0 {
			return fmt.Errorf("already a member of this tribe: %w", ErrConflict)
		}

		app = &models.TribeApplication{
			ID:             uuid.NewString(),
			TribeID:        tribeID,
			ExternalUserID: externalUserID,
			Message:        message,
			Status:         models.ApplicationPending,
		}
		ins := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tribe_id"}, {Name: "external_user_id"}},
			// SQLite matches the conflict target to the partial index by
			// comparing predicate text, so this must be the same literal as
			// the index's where clause, not a bound parameter.
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "status = 'PENDING'"},
			}},
			DoNothing: true,
		}).Create(app)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return fmt.Errorf("an application for this tribe is already pending: %w", ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// DecideApplication resolves a pending application exactly once. Approval
// creates the member row and flips the application in one transaction; the
// capacity check is re-verified under the tribe row lock, not just at an
// earlier read.
func (s *TribeService) DecideApplication(reviewerID, applicationID string, approve bool) (*models.TribeApplication, error) {
	var app models.TribeApplication
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := withRowLock(tx).Where("id = ?", applicationID).First(&app).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("application %s: %w", applicationID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if app.Status != models.ApplicationPending {
			return fmt.Errorf("application already resolved (%s): %w", app.Status, ErrConflict)
		}

		// Lock order is user row before tribe row, same as JoinDirect, so a
		// concurrent direct join and approval for the same user and tribe
		// cannot deadlock each other.
		var applicant *models.User
		if approve {
			if applicant, err = lockUser(tx, app.ExternalUserID); err != nil {
				return err
			}
		}

		tribe, err := s.getTribeLocked(tx, app.TribeID)
		if err != nil {
			return err
		}
		if err := s.authorizeManager(tx, tribe, reviewerID); err != nil {
			return err
		}

		now := s.Now()
		app.DecidedBy = &reviewerID
		app.DecidedAt = &now

		if !approve {
			app.Status = models.ApplicationDeclined
			return tx.Save(&app).Error
		}

		if _, err := s.seatMember(tx, tribe, applicant); err != nil {
			return err
		}
		app.Status = models.ApplicationApproved
		return tx.Save(&app).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("📋 Application %s → %s by %s", app.ID, app.Status, reviewerID)
	return &app, nil
}

// JoinDirect seats a user in an open-join tribe. The capacity count and the
// member insert happen under the same tribe row lock, so two joins racing for
// the last slot cannot both win.
func (s *TribeService) JoinDirect(externalUserID, tribeID string) (*models.TribeMember, error) {
	var member *models.TribeMember
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, externalUserID)
		if err != nil {
			return err
		}
		ent := ResolveEntitlements(user, s.Now())
		if !ent.CanJoinTribes {
			return Forbidden("joining tribes requires an active subscription or trial")
		}

		tribe, err := s.getTribeLocked(tx, tribeID)
		if err != nil {
			return err
		}
		if !tribe.OpenJoin {
			return Forbidden("this tribe only accepts members through applications")
		}
		if tribe.IsPaid && !ent.CanMonetizeTribe {
			return Forbidden("this is a paid tribe: an active subscription is required")
		}
		if reason := admissionShortfall(tribe, user); reason != "" {
			return Forbidden("%s", reason)
		}

		member, err = s.seatMember(tx, tribe, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// seatMember inserts the membership row after re-checking capacity. Caller
// must already hold both the user row lock and the tribe row lock, taken in
// that order. Fires the tribe-joined ledger event keyed by the membership id.
func (s *TribeService) seatMember(tx *gorm.DB, tribe *models.Tribe, user *models.User) (*models.TribeMember, error) {
	var count int64
	if err := tx.Model(&models.TribeMember{}).
		Where("tribe_id = ?", tribe.ID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count >= int64(tribe.MaxMembers) {
		return nil, fmt.Errorf("tribe %s is full (%d/%d): %w", tribe.Slug, count, tribe.MaxMembers, ErrConflict)
	}

	member := models.TribeMember{
		ID:             uuid.NewString(),
		TribeID:        tribe.ID,
		ExternalUserID: user.ExternalUserID,
		Role:           models.RolePlayer,
	}
	ins := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tribe_id"}, {Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&member)
	if ins.Error != nil {
		return nil, ins.Error
	}
	if ins.RowsAffected == 0 {
		return nil, fmt.Errorf("already a member of this tribe: %w", ErrConflict)
	}

	if _, err := s.Ledger.ApplyEventTx(tx, user, models.EventTribeJoined, "tribe-join:"+member.ID); err != nil {
		return nil, err
	}
	return &member, nil
}

// SetMemberRole changes another member's role. The creator's own membership
// stays ADMIN through the ownership-transfer flow, not this one.
func (s *TribeService) SetMemberRole(actingID, memberID string, role models.TribeRole) (*models.TribeMember, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, ErrValidation)
	}
	var out models.TribeMember
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		member, tribe, err := s.getMemberAndTribe(tx, memberID)
		if err != nil {
			return err
		}
		if err := s.authorizeManager(tx, tribe, actingID); err != nil {
			return err
		}
		if member.ExternalUserID == tribe.CreatorID {
			return Forbidden("the creator's role cannot be changed")
		}
		member.Role = role
		if err := tx.Save(member).Error; err != nil {
			return err
		}
		out = *member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BanMember sets or clears the ban flag. Banned members keep their row for
// audit but every role-gated path treats them as role-less.
func (s *TribeService) BanMember(actingID, memberID string, ban bool) (*models.TribeMember, error) {
	var out models.TribeMember
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		member, tribe, err := s.getMemberAndTribe(tx, memberID)
		if err != nil {
			return err
		}
		if err := s.authorizeManager(tx, tribe, actingID); err != nil {
			return err
		}
		if member.ExternalUserID == tribe.CreatorID {
			return Forbidden("the tribe creator cannot be banned")
		}
		if ban {
			now := s.Now()
			member.IsBanned = true
			member.BannedAt = &now
		} else {
			member.IsBanned = false
			member.BannedAt = nil
		}
		if err := tx.Save(member).Error; err != nil {
			return err
		}
		out = *member
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🚫 Member %s ban=%t by %s", memberID, ban, actingID)
	return &out, nil
}

// Leave removes the caller's own membership. The creator cannot leave;
// ownership transfer or tribe deletion are separate operations. Banned rows
// are retained for audit.
func (s *TribeService) Leave(externalUserID, tribeID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		tribe, err := s.getTribe(tx, tribeID)
		if err != nil {
			return err
		}
		if externalUserID == tribe.CreatorID {
			return fmt.Errorf("the creator cannot leave their own tribe: %w", ErrConflict)
		}
		var member models.TribeMember
		err = tx.Where("tribe_id = ? AND external_user_id = ?", tribeID, externalUserID).
			First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("not a member of this tribe: %w", ErrNotFound)
		}
		if err != nil {
			return err
		}
		if member.IsBanned {
			return fmt.Errorf("banned memberships are retained for audit: %w", ErrConflict)
		}
		return tx.Delete(&member).Error
	})
}

// SetCover stores the uploaded cover image URL. Creator/admin only.
func (s *TribeService) SetCover(actingID, tribeID, coverURL string) (*models.Tribe, error) {
	var out models.Tribe
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		tribe, err := s.getTribeLocked(tx, tribeID)
		if err != nil {
			return err
		}
		if err := s.authorizeManager(tx, tribe, actingID); err != nil {
			return err
		}
		tribe.CoverURL = coverURL
		if err := tx.Save(tribe).Error; err != nil {
			return err
		}
		out = *tribe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMembers returns the membership roster.
func (s *TribeService) ListMembers(tribeID string) ([]models.TribeMember, error) {
	if _, err := s.getTribe(s.DB, tribeID); err != nil {
		return nil, err
	}
	var members []models.TribeMember
	err := s.DB.Where("tribe_id = ?", tribeID).Order("joined_at ASC").Find(&members).Error
	return members, err
}

// authorizeManager enforces the uniform rule: mutating another member's
// standing requires being the tribe creator or an unbanned ADMIN member.
func (s *TribeService) authorizeManager(tx *gorm.DB, tribe *models.Tribe, actingID string) error {
	if actingID == tribe.CreatorID {
		return nil
	}
	var member models.TribeMember
	err := tx.Where("tribe_id = ? AND external_user_id = ?", tribe.ID, actingID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Forbidden("only the tribe creator or an admin can do this")
	}
	if err != nil {
		return err
	}
	if member.IsBanned || !member.Role.CanManageMembers() {
		return Forbidden("only the tribe creator or an admin can do this")
	}
	return nil
}

func (s *TribeService) getTribe(tx *gorm.DB, tribeID string) (*models.Tribe, error) {
	var tribe models.Tribe
	err := tx.Where("id = ?", tribeID).First(&tribe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tribe %s: %w", tribeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tribe, nil
}

func (s *TribeService) getTribeLocked(tx *gorm.DB, tribeID string) (*models.Tribe, error) {
	var tribe models.Tribe
	err := withRowLock(tx).Where("id = ?", tribeID).First(&tribe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tribe %s: %w", tribeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tribe, nil
}

func (s *TribeService) getMemberAndTribe(tx *gorm.DB, memberID string) (*models.TribeMember, *models.Tribe, error) {
	var member models.TribeMember
	err := withRowLock(tx).Where("id = ?", memberID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	tribe, err := s.getTribe(tx, member.TribeID)
	if err != nil {
		return nil, nil, err
	}
	return &member, tribe, nil
}

// admissionShortfall returns a denial reason when the user misses the tribe's
// thresholds, or "" when they qualify.
func admissionShortfall(tribe *models.Tribe, user *models.User) string {
	var unmet []string
	if user.Level < tribe.MinLevel {
		unmet = append(unmet, fmt.Sprintf("level %d required (you are %d)", tribe.MinLevel, user.Level))
	}
	if user.ReputationScore < tribe.MinReputation {
		unmet = append(unmet, fmt.Sprintf("reputation %.1f required (you have %.1f)", tribe.MinReputation, user.ReputationScore))
	}
	if user.Streak < tribe.MinStreak {
		unmet = append(unmet, fmt.Sprintf("a %d-week streak required (you have %d)", tribe.MinStreak, user.Streak))
	}
	if len(unmet) == 0 {
		return ""
	}
	return "does not meet tribe admission criteria: " + strings.Join(unmet, "; ")
}
