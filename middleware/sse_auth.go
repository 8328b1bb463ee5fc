package middleware

import (
	"strings"

	"order-of-ash/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SSEAuthMiddleware validates the session token passed as the `token` query parameter,
// since EventSource cannot set headers.
//
// Usage:
//
//	app.Get("/invoices/:id/stream", middleware.SSEAuthMiddleware(issuer, logger), h.stream)
func SSEAuthMiddleware(issuer *utils.SessionIssuer, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation_error",
				"message": "missing token in query",
			})
		}

		claims, err := issuer.Parse(token)
		if err != nil {
			logger.Debug("stream session rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid session token",
			})
		}

		c.Locals(playerIDKey, claims.PlayerID)
		return c.Next()
	}
}
