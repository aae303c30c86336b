package controller

import (
	"counseling-portal-be/internal/dto"
	"counseling-portal-be/internal/pkg/serverutils"
	"counseling-portal-be/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
	SignIn(ctx *fiber.Ctx) error
	SignOut(ctx *fiber.Ctx) error
	Refresh(ctx *fiber.Ctx) error
	Retry(ctx *fiber.Ctx) error
	ForgotPassword(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
}

func NewSessionController(service service.ISessionService) ISessionController {
	return &sessionController{service: service}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session")
	h.Get("/", c.Show)
	h.Post("/sign-in", c.SignIn)
	h.Post("/sign-out", c.SignOut)
	h.Post("/refresh", c.Refresh)
	h.Post("/retry", c.Retry)
	h.Post("/forgot-password", c.ForgotPassword)
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Session state",
		"data":    dto.FromSnapshot(c.service.Snapshot()),
	})
}

func (c *sessionController) SignIn(ctx *fiber.Ctx) error {
	var req dto.SignInRequest
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

	if err := c.service.SignIn(ctx.Context(), req.Email, req.Password); err != nil {
		code := serverutils.StatusFor(err)
		return ctx.Status(code).JSON(fiber.Map{
			"success": false,
			"code":    code,
			"message": err.Error(),
		})
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Signed in successfully",
		"data":    dto.FromSnapshot(c.service.Snapshot()),
	})
}

func (c *sessionController) SignOut(ctx *fiber.Ctx) error {
	if err := c.service.SignOut(ctx.Context()); err != nil {
		code := serverutils.StatusFor(err)
		return ctx.Status(code).JSON(fiber.Map{
			"success": false,
			"code":    code,
			"message": err.Error(),
		})
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Signed out successfully",
		"data":    dto.FromSnapshot(c.service.Snapshot()),
	})
}

func (c *sessionController) Refresh(ctx *fiber.Ctx) error {
	if err := c.service.Refresh(ctx.Context()); err != nil {
		code := serverutils.StatusFor(err)
		return ctx.Status(code).JSON(fiber.Map{
			"success": false,
			"code":    code,
			"message": err.Error(),
		})
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Session refreshed",
		"data":    dto.FromSnapshot(c.service.Snapshot()),
	})
}

// Retry is the "try again" escape hatch: it clears the open circuit for the
// session check and immediately re-runs it.
func (c *sessionController) Retry(ctx *fiber.Ctx) error {
	if err := c.service.Retry(ctx.Context()); err != nil {
		code := serverutils.StatusFor(err)
		return ctx.Status(code).JSON(fiber.Map{
			"success": false,
			"code":    code,
			"message": err.Error(),
		})
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Session re-checked",
		"data":    dto.FromSnapshot(c.service.Snapshot()),
	})
}

func (c *sessionController) ForgotPassword(ctx *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
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

	// Always report success so the endpoint cannot be used to probe which
	// emails have accounts.
	if err := c.service.ForgotPassword(ctx.Context(), req.Email); err != nil {
		code := serverutils.StatusFor(err)
		if code != fiber.StatusInternalServerError && code != fiber.StatusUnauthorized {
			return ctx.Status(code).JSON(fiber.Map{
				"success": false,
				"code":    code,
				"message": err.Error(),
			})
		}
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "If that email exists, a reset link has been sent",
		"data":    nil,
	})
}
