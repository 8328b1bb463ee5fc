package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"order-of-ash/config"
	"order-of-ash/handlers"
	"order-of-ash/models"
	"order-of-ash/services"
	"order-of-ash/utils"
	"order-of-ash/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	logger := utils.NewLogger(cfg.App.LogLevel)
	defer func() { _ = logger.Sync() }()

	db, err := gorm.Open(postgres.Open(cfg.App.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get database handle", zap.Error(err))
	}

	payment := services.PaymentTarget{
		Wallet:     cfg.TON.DepositWallet,
		AmountNano: cfg.TON.AmountNano(),
		Testnet:    cfg.TON.Testnet,
	}
	playerService := services.NewPlayerService(db, cfg.Game, logger)
	invoiceService := services.NewInvoiceService(db, cfg.Game, payment, logger)
	referralService := services.NewReferralService(db, cfg.Game, logger)
	finalService := services.NewFinalService(db, cfg.Game, logger)
	statsService := services.NewStatsService(db, logger)

	source, err := workers.NewTonapiSource(cfg.TON, logger)
	if err != nil {
		logger.Fatal("failed to create tonapi client", zap.Error(err))
	}
	watcher := workers.NewPaymentWatcher(source, invoiceService, cfg.TON.WatchBatch, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := workers.StartScheduler(ctx, watcher, playerService, cfg.TON.WatchInterval, cfg.App.SweepInterval, logger)
	if err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "order-of-ash",
		BodyLimit:    64 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // invoice streams stay open
	})

	allowedOrigins := strings.Join(cfg.API.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Telegram-Init-Data, X-Service-Token",
		MaxAge:       86400,
	}))

	handlers.Register(app, handlers.Deps{
		Players:        playerService,
		Invoices:       invoiceService,
		Referrals:      referralService,
		Final:          finalService,
		Stats:          statsService,
		Sessions:       utils.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL),
		BotToken:       cfg.Auth.BotToken,
		InitDataMaxAge: cfg.Auth.InitDataMaxAge,
		ServiceToken:   cfg.Auth.ServiceToken,
		RateLimit:      cfg.API.RateLimitPerMinute,
		Logger:         logger,
	})

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.API.Port)); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("✅ server running",
		zap.Int("port", cfg.API.Port),
		zap.String("deposit_wallet", utils.FriendlyAddress(cfg.TON.DepositWallet, cfg.TON.Testnet)),
		zap.Int64("invoice_nano", payment.AmountNano),
		zap.String("allowed_origins", allowedOrigins))

	<-ctx.Done()
	logger.Info("shutting down server...")

	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("database close", zap.Error(err))
	}
}
