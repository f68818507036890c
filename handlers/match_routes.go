package handlers

import (
	"strconv"

	"tribe-engagement-system/middleware"
	"tribe-engagement-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService) {
	secured := app.Group("/matching", middleware.UserContextMiddleware())

	secured.Get("/directory", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		users, err := matchService.ListDirectory(userID, limit)
		if err != nil {
			return respondError(c, err)
		}

		type Candidate struct {
			ExternalUserID  string  `json:"external_user_id"`
			Username        string  `json:"username"`
			Bio             *string `json:"bio,omitempty"`
			AvatarURL       *string `json:"avatar_url,omitempty"`
			Level           int     `json:"level"`
			ReputationScore float64 `json:"reputation_score"`
			Streak          int     `json:"streak"`
		}
		out := make([]Candidate, len(users))
		for i, u := range users {
			out[i] = Candidate{
				ExternalUserID:  u.ExternalUserID,
				Username:        u.Username,
				Bio:             u.Bio,
				AvatarURL:       u.AvatarURL,
				Level:           u.Level,
				ReputationScore: u.ReputationScore,
				Streak:          u.Streak,
			}
		}
		return c.JSON(out)
	})

	secured.Post("/decisions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type Req struct {
			TargetID string `json:"target_id" validate:"required"`
			Decision string `json:"decision" validate:"oneof=LIKE PASS"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		result, err := matchService.RecordDecision(userID, req.TargetID, req.Decision)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})
}
