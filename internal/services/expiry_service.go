package services

import (
	"context"
	"fmt"
	"time"

	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

const (
	expiryScanLimit = 500
	notifiedKeyTTL  = 30 * 24 * time.Hour
)

// OncePublisher is satisfied by events.RedisPublisher.
type OncePublisher interface {
	PublishOnce(ctx context.Context, stream, key string, ttl time.Duration, event events.Event) (bool, error)
}

// ExpiryService tells senders that an escrow reached its expiry and can be
// reclaimed. Each (payment, expiry) pair is announced once; extending the
// expiry makes the payment eligible again.
type ExpiryService struct {
	remittance *RemittanceService
	publisher  OncePublisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewExpiryService(remittanceService *RemittanceService, publisher OncePublisher, cfg *config.Config, log *zap.Logger) *ExpiryService {
	return &ExpiryService{remittance: remittanceService, publisher: publisher, cfg: cfg, log: log}
}

// NotifyExpired returns how many notifications went out.
func (s *ExpiryService) NotifyExpired(ctx context.Context) (int, error) {
	expired, err := s.remittance.Expired(ctx, expiryScanLimit)
	if err != nil {
		return 0, fmt.Errorf("list expired payments: %w", err)
	}

	sent := 0
	for _, p := range expired {
		key := fmt.Sprintf("remittance:reclaim-notified:%s:%d", p.SecureCode.Hex(), p.ExpiresAt)
		ok, err := s.publisher.PublishOnce(ctx, s.cfg.NotifyChannel, key, notifiedKeyTTL, events.Event{
			Type:      events.EventReclaimAvailable,
			Addresses: []string{p.Sender.String()},
			Payload: map[string]any{
				"secure_code": p.SecureCode.Hex(),
				"amount_nano": p.Amount,
				"amount_ton":  ton.FormatTON(p.Amount),
				"expires_at":  p.ExpiresAt,
			},
		})
		if err != nil {
			s.log.Warn("failed to publish reclaim notification", zap.String("secure_code", p.SecureCode.Hex()), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}

	if sent > 0 {
		s.log.Info("reclaim notifications sent", zap.Int("count", sent), zap.Int("expired", len(expired)))
	}
	return sent, nil
}
