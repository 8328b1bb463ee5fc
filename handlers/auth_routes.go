package handlers

import (
	"errors"
	"time"

	"order-of-ash/services"
	"order-of-ash/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type loginRequest struct {
	InitData string `json:"init_data"`
}

func SetupAuthRoutes(app *fiber.App, d Deps, limit fiber.Handler) {
	// Telegram WebApp login: initData in the body or the X-Telegram-Init-Data header
	app.Post("/auth/telegram", limit, func(c *fiber.Ctx) error {
		var req loginRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid request body")
			}
		}
		if req.InitData == "" {
			req.InitData = c.Get("X-Telegram-Init-Data")
		}
		if req.InitData == "" {
			return badRequest(c, "init_data is required")
		}

		data, err := utils.ValidateInitData(req.InitData, d.BotToken, d.InitDataMaxAge, time.Now())
		if err != nil {
			d.Logger.Info("telegram login rejected", zap.Error(err))
			status := fiber.StatusUnauthorized
			if errors.Is(err, utils.ErrInitDataExpired) {
				return c.Status(status).JSON(fiber.Map{"error": "unauthorized", "message": "init data expired"})
			}
			return c.Status(status).JSON(fiber.Map{"error": "unauthorized", "message": "invalid init data"})
		}

		player, created, err := d.Players.Login(c.UserContext(), services.LoginInput{
			PlayerID:   data.User.ID,
			Name:       data.User.DisplayName(),
			StartParam: data.StartParam,
		})
		if err != nil {
			return respondError(c, err)
		}

		token, expires, err := d.Sessions.Issue(player.ID, time.Now())
		if err != nil {
			d.Logger.Error("issuing session failed", zap.Int64("player_id", player.ID), zap.Error(err))
			return respondError(c, err)
		}

		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{
			"token":      token,
			"expires_at": expires,
			"created":    created,
			"player":     player,
		})
	})
}
