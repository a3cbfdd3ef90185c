package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/storybird/internal/observability"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

// ErrorHandler renders every error as {"error": message}. Unexpected errors
// are logged with their cause and answered with a generic message.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := internalErrorMessage

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		reqLogger := observability.WithContextLogger(logger, observability.RequestContext(c))
		if code >= fiber.StatusInternalServerError {
			reqLogger.Error("request error", fields...)
		} else {
			reqLogger.Debug("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
