package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"

	"tribe-engagement-system/middleware"
	"tribe-engagement-system/models"
	"tribe-engagement-system/services"
	"tribe-engagement-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func SetupLedgerRoutes(app *fiber.App, ledgerService *services.LedgerService, badgeService *services.BadgeService, sweepService *services.SweepService, userService *services.UserService) {
	secured := app.Group("/user", middleware.UserContextMiddleware())

	secured.Get("/ledger", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		user, err := userService.GetByExternalID(userID)
		if err != nil {
			return respondError(c, err)
		}
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		events, err := ledgerService.RecentEvents(userID, limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"current_xp":           user.CurrentXP,
			"lifetime_positive_xp": user.LifetimePositiveXP,
			"level":                user.Level,
			"reputation_score":     user.ReputationScore,
			"review_count":         user.ReviewCount,
			"streak":               user.Streak,
			"last_checkin_at":      user.LastCheckinAt,
			"recent_events":        events,
		})
	})

	secured.Post("/checkin", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		result, err := ledgerService.CompleteCheckin(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})

	secured.Post("/feedback", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type Req struct {
			FeedbackID string `json:"feedback_id" validate:"required"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		result, err := ledgerService.RecordFeedback(userID, req.FeedbackID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})

	secured.Post("/reviews", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type Req struct {
			TargetID string `json:"target_id" validate:"required"`
			Score    int    `json:"score" validate:"required,min=1,max=5"`
			Comment  string `json:"comment" validate:"max=1000"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		result, err := ledgerService.RecordPeerReview(userID, req.TargetID, req.Score, req.Comment)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})

	secured.Get("/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		badges, err := badgeService.UserBadges(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(badges)
	})

	// Admin endpoints
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	admin.Post("/xp/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id" validate:"required,uuid"`
			Amount int64  `json:"amount" validate:"required"`
			Reason string `json:"reason" validate:"max=255"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		result, err := ledgerService.GrantXP(req.UserID, req.Amount, req.Reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})

	admin.Post("/sweep/run", func(c *fiber.Ctx) error {
		periodKey := c.Query("period")
		if periodKey == "" {
			periodKey = services.ISOWeekKey(sweepService.Now())
		}
		report := sweepService.RunSweep(periodKey)
		return c.JSON(report)
	})

	admin.Post("/badges", func(c *fiber.Ctx) error {
		badge := models.BadgeType{
			Code:        c.FormValue("code"),
			Name:        c.FormValue("name"),
			Description: c.FormValue("description"),
			Rarity:      c.FormValue("rarity", "common"),
		}
		// multipart form: the threshold predicate arrives as a JSON field
		if raw := c.FormValue("threshold"); raw != "" {
			if err := parseThreshold(raw, &badge.Threshold); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid threshold", "cause": err.Error()})
			}
		}

		if icon, err := c.FormFile("icon"); err == nil {
			key := fmt.Sprintf("badges/%s%s", uuid.NewString(), utils.FileExt(icon.Filename))
			url, err := utils.UploadToR2(icon, key)
			if err != nil {
				return respondError(c, err)
			}
			badge.IconURL = url
		}

		if err := badgeService.CreateBadgeType(&badge); err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(badge)
	})
}

func parseThreshold(raw string, out *map[string]int64) error {
	return json.Unmarshal([]byte(raw), out)
}
