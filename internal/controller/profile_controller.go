package controller

import (
	"counseling-portal-be/internal/dto"
	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/pkg/serverutils"
	"counseling-portal-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IProfileController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
	SubmitIntake(ctx *fiber.Ctx) error
}

type profileController struct {
	sessions service.ISessionService
	profiles service.IProfileService
}

func NewProfileController(sessions service.ISessionService, profiles service.IProfileService) IProfileController {
	return &profileController{sessions: sessions, profiles: profiles}
}

func (c *profileController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/profile", serverutils.RequireSession(c.sessions))
	h.Get("/", c.Show)
	h.Post("/intake", serverutils.RequireRole(c.sessions, entity.RoleClient), c.SubmitIntake)
}

func (c *profileController) Show(ctx *fiber.Ctx) error {
	profile := c.profiles.Profile()
	status := c.profiles.Status()

	res := dto.ProfileResponse{Status: string(status)}
	if profile != nil {
		res.IntakeComplete = profile.IntakeComplete
		res.Fields = profile.Fields
		updatedAt := profile.UpdatedAt
		res.UpdatedAt = &updatedAt
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Profile retrieved successfully",
		"data":    res,
	})
}

func (c *profileController) SubmitIntake(ctx *fiber.Ctx) error {
	var req dto.SubmitIntakeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := validate.Struct(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"code":    400,
			"message": err.Error(),
		})
	}

	identityId, ok := ctx.Locals("identity_id").(uuid.UUID)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"code":    401,
			"message": "Not signed in",
		})
	}

	if err := c.profiles.SubmitIntake(ctx.Context(), identityId, req.Fields); err != nil {
		code := serverutils.StatusFor(err)
		return ctx.Status(code).JSON(fiber.Map{
			"success": false,
			"code":    code,
			"message": err.Error(),
		})
	}

	status := c.profiles.Status()
	if status == entity.ProfileStatusErrorFetching {
		// The write landed but the reload degraded; the caller should refetch.
		return ctx.JSON(fiber.Map{
			"success": true,
			"code":    200,
			"message": "Intake saved, profile reload pending",
			"data":    dto.ProfileResponse{Status: string(status)},
		})
	}

	return c.Show(ctx)
}
