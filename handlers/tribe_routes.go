package handlers

import (
	"fmt"

	"tribe-engagement-system/middleware"
	"tribe-engagement-system/models"
	"tribe-engagement-system/services"
	"tribe-engagement-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func SetupTribeRoutes(app *fiber.App, tribeService *services.TribeService) {
	tribes := app.Group("/tribes", middleware.UserContextMiddleware())
	applications := app.Group("/applications", middleware.UserContextMiddleware())

	tribes.Post("/", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var input services.CreateTribeInput
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		tribe, err := tribeService.CreateTribe(userID, input)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(tribe)
	})

	tribes.Post("/:id/cover", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		cover, err := c.FormFile("cover")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cover file required"})
		}
		key := fmt.Sprintf("tribes/%s/%s%s", c.Params("id"), uuid.NewString(), utils.FileExt(cover.Filename))
		url, err := utils.UploadToR2(cover, key)
		if err != nil {
			return respondError(c, err)
		}
		tribe, err := tribeService.SetCover(userID, c.Params("id"), url)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(tribe)
	})

	tribes.Post("/:id/apply", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type Req struct {
			Message string `json:"message" validate:"max=2000"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		application, err := tribeService.Apply(userID, c.Params("id"), req.Message)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(application)
	})

	tribes.Post("/:id/join", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		member, err := tribeService.JoinDirect(userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(member)
	})

	applications.Post("/:id/decision", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type Req struct {
			Decision string `json:"decision" validate:"oneof=approve decline"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.Decision != "approve" && req.Decision != "decline" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "decision must be approve or decline"})
		}
		application, err := tribeService.DecideApplication(userID, c.Params("id"), req.Decision == "approve")
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(application)
	})

	tribes.Patch("/:id/members/:memberId/role", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type Req struct {
			Role string `json:"role" validate:"required"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		member, err := tribeService.SetMemberRole(userID, c.Params("memberId"), models.TribeRole(req.Role))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(member)
	})

	tribes.Post("/:id/members/:memberId/ban", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		type Req struct {
			Ban bool `json:"ban"`
		}
		req := Req{Ban: true}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
			}
		}
		member, err := tribeService.BanMember(userID, c.Params("memberId"), req.Ban)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(member)
	})

	tribes.Post("/:id/leave", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		if err := tribeService.Leave(userID, c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"left": true})
	})

	tribes.Get("/:id/members", func(c *fiber.Ctx) error {
		members, err := tribeService.ListMembers(c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(members)
	})
}
