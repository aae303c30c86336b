package serverutils

import (
	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RequireSession rejects requests until the session is authenticated. During
// startup the state is still INITIALIZING; callers get a retryable 503
// instead of a misleading 401.
func RequireSession(sessions service.ISessionService) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		snap := sessions.Snapshot()
		switch snap.State {
		case entity.SessionAuthenticated:
			ctx.Locals("identity_id", snap.Identity.Id)
			return ctx.Next()
		case entity.SessionInitializing:
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"code":    fiber.StatusServiceUnavailable,
				"message": "Session is still initializing",
			})
		default:
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"code":    fiber.StatusUnauthorized,
				"message": "Not signed in",
			})
		}
	}
}

// RequireRole gates a route on holding any of the listed roles.
func RequireRole(sessions service.ISessionService, roles ...string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if !sessions.HasRole(roles...) {
			return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"code":    fiber.StatusForbidden,
				"message": "Insufficient role",
			})
		}
		return ctx.Next()
	}
}
