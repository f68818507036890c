package services

import (
	"testing"
	"time"

	"tribe-engagement-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema. One
// connection only, so every test sees the same memory store.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.LedgerEvent{},
		&models.BadgeType{},
		&models.UserBadge{},
		&models.Tribe{},
		&models.TribeMember{},
		&models.TribeApplication{},
		&models.MatchDecision{},
		&models.CheckIn{},
		&models.PeerReview{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// seedUser inserts an active subscriber; mut tweaks the row before insert.
func seedUser(t *testing.T, db *gorm.DB, externalID string, mut func(*models.User)) *models.User {
	t.Helper()
	user := &models.User{
		ID:                 uuid.NewString(),
		ExternalUserID:     externalID,
		Username:           externalID,
		SubscriptionStatus: models.SubscriptionActive,
		ProfileTier:        models.TierStarter,
		Level:              1,
	}
	if mut != nil {
		mut(user)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user %s: %v", externalID, err)
	}
	return user
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func reloadUser(t *testing.T, db *gorm.DB, externalID string) *models.User {
	t.Helper()
	var user models.User
	if err := db.Where("external_user_id = ?", externalID).First(&user).Error; err != nil {
		t.Fatalf("reload user %s: %v", externalID, err)
	}
	return &user
}
