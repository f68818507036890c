package handlers

import (
	"tribe-engagement-system/middleware"
	"tribe-engagement-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupEntitlementRoutes(app *fiber.App, userService *services.UserService) {
	// The user-context requirement is scoped to /user. A "/" group would run
	// it for every route in the app, including the webhook below, which
	// carries no user session.
	secured := app.Group("/user", middleware.UserContextMiddleware())

	secured.Get("/entitlements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		ent, err := userService.Entitlements(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ent)
	})

	secured.Post("/trial/start", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		user, err := userService.StartTrial(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"subscription_status": user.SubscriptionStatus,
			"trial_ends_at":       user.TrialEndsAt,
		})
	})

	// Payment provider webhooks arrive through the gateway with a service
	// identity, not a user session: only the gateway token gates them.
	app.Post("/webhooks/subscription", func(c *fiber.Ctx) error {
		type Req struct {
			ExternalUserID string `json:"external_user_id" validate:"required"`
			Event          string `json:"event" validate:"oneof=activated cancelled"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		var err error
		switch req.Event {
		case "activated":
			_, err = userService.ActivateSubscription(req.ExternalUserID)
		case "cancelled":
			_, err = userService.CancelSubscription(req.ExternalUserID)
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown event"})
		}
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"processed": true})
	})
}
