package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"tribe-engagement-system/models"
	"tribe-engagement-system/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	app := fiber.New()
	SetupEntitlementRoutes(app, services.NewUserService(db))
	return app, db
}

func seedActiveUser(t *testing.T, db *gorm.DB, externalID string) {
	t.Helper()
	user := models.User{
		ID:                 uuid.NewString(),
		ExternalUserID:     externalID,
		Username:           externalID,
		SubscriptionStatus: models.SubscriptionActive,
		ProfileTier:        models.TierStarter,
		Level:              1,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestSubscriptionWebhookNeedsNoUserContext(t *testing.T) {
	app, db := newTestApp(t)
	seedActiveUser(t, db, "u-1")

	// Payment-provider callbacks carry no X-User-ID; the route must not sit
	// behind the user-context middleware.
	req := httptest.NewRequest("POST", "/webhooks/subscription",
		strings.NewReader(`{"external_user_id":"u-1","event":"cancelled"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var user models.User
	if err := db.Where("external_user_id = ?", "u-1").First(&user).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.SubscriptionStatus != models.SubscriptionGracePeriod {
		t.Fatalf("status = %s, want GRACE_PERIOD after cancellation webhook", user.SubscriptionStatus)
	}
}

func TestUserRoutesStillRequireIdentity(t *testing.T) {
	app, db := newTestApp(t)
	seedActiveUser(t, db, "u-2")

	req := httptest.NewRequest("GET", "/user/entitlements", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status without X-User-ID = %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/user/entitlements", nil)
	req.Header.Set("X-User-ID", "u-2")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status with X-User-ID = %d, want 200", resp.StatusCode)
	}
}
