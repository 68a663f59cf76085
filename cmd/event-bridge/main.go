package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/db"
	"github.com/remittance/backend/internal/events"
	"go.uber.org/zap"
)

// Event Bridge: subscribes to ledger events and notifications in Redis
// and forwards each one to WEBHOOK_URL (external indexer / UI backend).

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.WebhookURL == "" {
		log.Fatal("WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	forwarder := events.NewWebhookForwarder(cfg.WebhookURL, cfg.WebhookTimeout, log)

	log.Info("event-bridge started", zap.String("webhook", cfg.WebhookURL))

	for _, stream := range []string{cfg.EventsChannel, cfg.NotifyChannel} {
		err := subscriber.Subscribe(ctx, stream, func(event events.Event) {
			if err := forwarder.Forward(event); err != nil {
				log.Warn("failed to forward event",
					zap.String("stream", stream),
					zap.String("type", event.Type),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			log.Fatal("failed to subscribe", zap.String("stream", stream), zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down event-bridge")
	cancel()
}
