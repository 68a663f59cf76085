package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WebhookForwarder POSTs events as JSON to an external consumer.
type WebhookForwarder struct {
	url     string
	timeout time.Duration
	log     *zap.Logger
}

func NewWebhookForwarder(url string, timeout time.Duration, log *zap.Logger) *WebhookForwarder {
	return &WebhookForwarder{url: url, timeout: timeout, log: log}
}

// Forward treats any non-2xx answer as a failure.
func (f *WebhookForwarder) Forward(event Event) error {
	agent := fiber.Post(f.url)
	agent.Timeout(f.timeout)
	agent.Set("X-Event-Type", event.Type)
	agent.JSON(event)

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("post %s: %w", event.Type, errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("post %s: webhook answered %d", event.Type, code)
	}
	f.log.Debug("event forwarded", zap.String("type", event.Type), zap.Int("status", code))
	return nil
}
