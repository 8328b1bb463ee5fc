package handlers

import (
	"strings"
	"time"

	"order-of-ash/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type finalRequest struct {
	Phrase string `json:"phrase"`
}

func SetupPlayerRoutes(app *fiber.App, d Deps, auth, limit fiber.Handler) {
	app.Get("/player", auth, func(c *fiber.Ctx) error {
		view, err := d.Players.Get(c.UserContext(), middleware.PlayerID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	})

	app.Post("/burn/free", auth, limit, func(c *fiber.Ctx) error {
		res, err := d.Players.FreeBurn(c.UserContext(), middleware.PlayerID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	app.Post("/referrals/claim", auth, limit, func(c *fiber.Ctx) error {
		res, err := d.Referrals.Claim(c.UserContext(), middleware.PlayerID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	app.Get("/referrals", auth, func(c *fiber.Ctx) error {
		refs, err := d.Referrals.Referrals(c.UserContext(), middleware.PlayerID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"referrals": refs, "count": len(refs)})
	})

	// 🔥 Final rite: an accepted phrase earns a fresh session
	app.Post("/final", auth, limit, func(c *fiber.Ctx) error {
		var req finalRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if strings.TrimSpace(req.Phrase) == "" {
			return badRequest(c, "phrase is required")
		}

		playerID := middleware.PlayerID(c)
		res, err := d.Final.Submit(c.UserContext(), playerID, req.Phrase)
		if err != nil {
			return respondError(c, err)
		}
		if !res.Accepted {
			return c.JSON(fiber.Map{"accepted": false})
		}

		token, expires, err := d.Sessions.Issue(playerID, time.Now())
		if err != nil {
			d.Logger.Error("issuing session failed", zap.Int64("player_id", playerID), zap.Error(err))
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"accepted": true, "token": token, "expires_at": expires})
	})
}
