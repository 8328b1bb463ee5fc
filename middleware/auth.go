package middleware

import (
	"strings"

	"order-of-ash/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const playerIDKey = "player_id"

// PlayerID returns the authenticated player set by SessionMiddleware or SSEAuthMiddleware.
func PlayerID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(playerIDKey).(int64)
	return id
}

func bearerToken(header string) string {
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == header {
		// no "Bearer " prefix, accept the raw value
		token = strings.TrimSpace(header)
	}
	return token
}

// SessionMiddleware validates the session JWT from the Authorization header and attaches the player id.
func SessionMiddleware(issuer *utils.SessionIssuer, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "missing session token",
			})
		}

		claims, err := issuer.Parse(token)
		if err != nil {
			logger.Debug("session rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid session token",
			})
		}

		c.Locals(playerIDKey, claims.PlayerID)
		return c.Next()
	}
}
