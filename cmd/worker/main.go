package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/db"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/repositories"
	"github.com/remittance/backend/internal/services"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

const proofCleanupInterval = 10 * time.Minute

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatal("worker reads the shared ledger and needs STORE_DRIVER=postgres")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	paymentRepo := repositories.NewPaymentRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	proofRepo := repositories.NewProofRepo(pool)

	// Services (the worker never pays out)
	publisher := events.NewRedisPublisher(rdb, log)
	ledger := remittance.New(paymentRepo, ton.DisabledWallet{})
	remittanceService := services.NewRemittanceService(ledger, auditRepo, publisher, cfg, log)
	expiryService := services.NewExpiryService(remittanceService, publisher, cfg, log)

	log.Info("worker started", zap.Duration("expiry_scan_interval", cfg.ExpiryScanInterval))

	// Run jobs on tickers
	expiryTicker := time.NewTicker(cfg.ExpiryScanInterval)
	proofTicker := time.NewTicker(proofCleanupInterval)
	defer expiryTicker.Stop()
	defer proofTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expiryTicker.C:
			if _, err := expiryService.NotifyExpired(ctx); err != nil {
				log.Error("expiry scan failed", zap.Error(err))
			}
		case <-proofTicker.C:
			n, err := proofRepo.DeleteExpired(ctx)
			if err != nil {
				log.Error("failed to delete expired proof payloads", zap.Error(err))
			} else if n > 0 {
				log.Info("expired proof payloads deleted", zap.Int64("count", n))
			}
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
