package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/db"
	"github.com/remittance/backend/internal/events"
	apphttp "github.com/remittance/backend/internal/http"
	"github.com/remittance/backend/internal/http/dto"
	"github.com/remittance/backend/internal/http/handlers"
	"github.com/remittance/backend/internal/middleware"
	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/repositories"
	"github.com/remittance/backend/internal/services"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner, err := ton.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		log.Fatal("invalid OWNER_ADDRESS", zap.String("addr", cfg.OwnerAddress), zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Storage
	var (
		store  remittance.Store
		audit  services.AuditLogger
		proofs services.ProofStore
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store = remittance.NewMemoryStore()
		audit = services.NopAudit{}
		proofs = services.NewMemoryProofStore()
	default:
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.RunMigrations(ctx, pool, db.Migrations(), log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		store = repositories.NewPaymentRepo(pool)
		audit = repositories.NewAuditRepo(pool)
		proofs = repositories.NewProofRepo(pool)
	}

	// TON: payouts and on-chain key lookup need a lite client
	var (
		bank remittance.Transferer = ton.DisabledWallet{}
		keys services.KeyResolver
	)
	if cfg.TONWalletSeed != "" {
		opts := ton.ConnectOptions{Network: cfg.TONNetwork, Host: cfg.LiteServerHost, Port: cfg.LiteServerPort, Key: cfg.LiteServerKey}
		api, err := ton.Connect(ctx, opts, log)
		if err != nil {
			log.Fatal("failed to connect to TON network", zap.Error(err))
		}
		hot, err := ton.NewHotWallet(api, cfg.TONWalletSeed, !opts.IsMainnet(), log)
		if err != nil {
			log.Fatal("failed to open hot wallet", zap.Error(err))
		}
		log.Info("hot wallet ready", zap.String("address", hot.Address().String()))
		bank = hot
		keys = ton.NewChain(api, !opts.IsMainnet())
	}

	// Ledger
	ledger := remittance.New(store, bank, remittance.WithMaxExtension(cfg.MaxExpiryExtension))
	fee := remittance.FeeConfig{Amount: cfg.FeeAmountNano, ThresholdRatio: cfg.FeeThresholdRatio}
	st, err := ledger.Init(ctx, owner, fee, cfg.LedgerRunning)
	if err != nil {
		log.Fatal("failed to initialise ledger", zap.Error(err))
	}
	log.Info("ledger ready",
		zap.String("owner", st.Owner.String()),
		zap.Uint64("fee_nano", st.Fee.Amount),
		zap.Uint64("fee_threshold_ratio", st.Fee.ThresholdRatio),
		zap.Bool("running", st.Running),
	)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	remittanceService := services.NewRemittanceService(ledger, audit, publisher, cfg, log)
	authService := services.NewAuthService(proofs, keys, audit, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	remittanceHandler := handlers.NewRemittanceHandler(remittanceService, cfg, log)
	adminHandler := handlers.NewAdminHandler(remittanceService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, remittanceHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
