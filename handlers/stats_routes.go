package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupStatsRoutes(app *fiber.App, d Deps) {
	app.Get("/stats", func(c *fiber.Ctx) error {
		counters, err := d.Stats.Counters(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(counters)
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
