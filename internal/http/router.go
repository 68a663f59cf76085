package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/http/handlers"
	"github.com/remittance/backend/internal/middleware"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	remittanceHandler *handlers.RemittanceHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// rdb == nil only in tests
	if rdb != nil {
		api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log))
	}

	// Auth (public)
	api.Post("/auth/ton-proof/payload", authHandler.GeneratePayload)
	api.Post("/auth/ton-proof", authHandler.Login)

	// Ledger queries (public)
	api.Get("/ledger", remittanceHandler.GetLedger)
	api.Get("/payments/:code", remittanceHandler.GetPayment)
	api.Get("/payments/:code/events", remittanceHandler.GetPaymentEvents)
	api.Post("/codes/retrieval", remittanceHandler.RetrievalCode)
	api.Post("/codes/secure", remittanceHandler.SecureCode)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret, log))

	// Exchange / sender
	protected.Post("/payments/withdraw", remittanceHandler.Withdraw)
	protected.Post("/payments/:code/reclaim", remittanceHandler.Reclaim)
	protected.Post("/payments/:code/extend", remittanceHandler.ExtendExpiry)

	// Owner
	protected.Put("/admin/fee", adminHandler.AdjustFee)
	protected.Put("/admin/fee-threshold", adminHandler.AdjustThresholdFee)
	protected.Post("/admin/fees/withdraw", adminHandler.WithdrawFees)
	protected.Post("/admin/pause", adminHandler.Pause)
	protected.Post("/admin/resume", adminHandler.Resume)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
