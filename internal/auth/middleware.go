package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/storybird/internal/observability"
	"go.uber.org/zap"
)

// Middleware rejects requests without a live session cookie. It passes every
// request through when authentication is disabled.
func Middleware(service *Service, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if !service.Enabled() {
			return c.Next()
		}

		ctx := observability.RequestContext(c)
		ok, err := service.Authenticated(ctx, c.Cookies(CookieName))
		if err != nil {
			observability.WithContextLogger(logger, ctx).Error("session lookup failed",
				zap.Error(err),
			)
			return fiber.NewError(fiber.StatusServiceUnavailable, "session store unavailable")
		}
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		return c.Next()
	}
}
