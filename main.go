package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tribe-engagement-system/handlers"
	"tribe-engagement-system/middleware"
	"tribe-engagement-system/models"
	"tribe-engagement-system/services"
	"tribe-engagement-system/utils"
	"tribe-engagement-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 16 * 1024 * 1024, // covers badge icon / cover uploads
	})

	// All traffic must come through the gateway.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOrigins = "http://localhost:3000"
	}
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

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
		log.Fatal("failed to migrate database:", err)
	}

	ledgerService := services.NewLedgerService(db)
	badgeService := ledgerService.Badges
	userService := services.NewUserService(db)
	if d := durationEnv("TRIAL_DURATION"); d > 0 {
		userService.TrialDuration = d
	}
	if d := durationEnv("GRACE_DURATION"); d > 0 {
		userService.GraceDuration = d
	}
	tribeService := services.NewTribeService(db, ledgerService)
	matchService := services.NewMatchService(db, ledgerService)
	sweepService := services.NewSweepService(db, ledgerService, userService)

	if err := badgeService.SeedCatalog(); err != nil {
		log.Fatal("failed to seed badge catalog:", err)
	}

	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("TRIBE_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("TRIBE_SERVICE_TOKEN environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := workers.NewProfileSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)
	syncWorker.Start(ctx)

	scheduler, err := sweepService.StartScheduler()
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}
	defer func() { _ = scheduler.Shutdown() }()

	handlers.SetupEntitlementRoutes(app, userService)
	handlers.SetupLedgerRoutes(app, ledgerService, badgeService, sweepService, userService)
	handlers.SetupTribeRoutes(app, tribeService)
	handlers.SetupMatchRoutes(app, matchService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Profile sync worker running")
	log.Println("✅ Weekly sweep and daily expiry jobs scheduled")

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func durationEnv(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, ignoring", key, raw)
		return 0
	}
	return d
}
