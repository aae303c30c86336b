package serverutils

import (
	"errors"

	"counseling-portal-be/pkg/resilience"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps resilience errors onto HTTP statuses so controllers all
// speak the same language about degraded dependencies.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, resilience.ErrProviderRejected):
		return fiber.StatusUnauthorized
	case errors.Is(err, resilience.ErrCircuitOpen):
		return fiber.StatusTooManyRequests
	case errors.Is(err, resilience.ErrNetworkUnreachable), errors.Is(err, resilience.ErrTimeout):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, resilience.ErrCancelled):
		return fiber.StatusRequestTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler is the app-level fiber error handler. Unhandled errors from
// controllers land here and come out in the standard envelope.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := StatusFor(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return ctx.Status(code).JSON(fiber.Map{
		"success": false,
		"code":    code,
		"message": err.Error(),
	})
}
