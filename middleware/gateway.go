package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ServiceTokenMiddleware admits trusted internal callers presenting X-Service-Token
// (or a bearer token) equal to the configured service token.
func ServiceTokenMiddleware(expected string, logger *zap.Logger) fiber.Handler {
	if expected == "" {
		logger.Fatal("SERVICE_TOKEN is not set, internal routes cannot authenticate callers")
	}

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			token = bearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if token == "" {
			logger.Warn("missing service token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "service authentication token missing",
			})
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			logger.Warn("invalid service token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid service authentication token",
			})
		}
		return c.Next()
	}
}
