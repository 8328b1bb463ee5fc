package handlers

import (
	"time"

	"order-of-ash/middleware"
	"order-of-ash/services"
	"order-of-ash/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Players        *services.PlayerService
	Invoices       *services.InvoiceService
	Referrals      *services.ReferralService
	Final          *services.FinalService
	Stats          *services.StatsService
	Sessions       *utils.SessionIssuer
	BotToken       string
	InitDataMaxAge time.Duration
	ServiceToken   string
	RateLimit      int
	StreamInterval time.Duration
	Logger         *zap.Logger
}

// Register mounts every route on app.
func Register(app *fiber.App, d Deps) {
	if d.StreamInterval <= 0 {
		d.StreamInterval = time.Second
	}
	auth := middleware.SessionMiddleware(d.Sessions, d.Logger)
	limit := func(c *fiber.Ctx) error { return c.Next() }
	if d.RateLimit > 0 {
		limit = middleware.RateLimit(d.RateLimit)
	}

	SetupAuthRoutes(app, d, limit)
	SetupPlayerRoutes(app, d, auth, limit)
	SetupInvoiceRoutes(app, d, auth, limit)
	SetupStatsRoutes(app, d)
}
