package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

// Outcomes of HandleTransfer, stored as the indexer's idempotency marker.
const (
	OutcomeIgnored   = "ignored"
	OutcomeDeposited = "deposited"
	OutcomeRefunded  = "refunded"
	OutcomeKept      = "kept" // rejected but too small to refund
)

// MinRefundNano: smaller rejected transfers are not worth the gas of a
// refund and stay in the hot wallet.
const MinRefundNano = 10_000_000 // 0.01 TON

// Transfer is an incoming value transfer to the hot wallet.
type Transfer struct {
	LT      uint64
	From    remittance.Address
	Amount  *big.Int
	Comment string
}

// DepositService turns on-chain transfers carrying a deposit comment into
// ledger deposits. A rejected deposit is sent back to its source.
type DepositService struct {
	remittance *RemittanceService
	refunds    remittance.Transferer
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewDepositService(
	remittanceService *RemittanceService,
	refunds remittance.Transferer,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DepositService {
	return &DepositService{
		remittance: remittanceService,
		refunds:    refunds,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// HandleTransfer returns an error only for infrastructure failures; the
// transfer must then be retried. Every other case yields an outcome.
func (s *DepositService) HandleTransfer(ctx context.Context, t Transfer) (string, error) {
	d, ok, perr := ton.ParseDepositComment(s.cfg.DepositCommentPrefix, t.Comment)
	if !ok {
		s.log.Debug("transfer without deposit comment, skipping",
			zap.Uint64("lt", t.LT),
			zap.String("from", t.From.String()),
		)
		return OutcomeIgnored, nil
	}

	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return OutcomeIgnored, nil
	}
	if !t.Amount.IsUint64() {
		return s.refund(ctx, t, 0, fmt.Errorf("%w: amount does not fit the ledger", remittance.ErrOverflow))
	}
	value := t.Amount.Uint64()

	if perr != nil {
		return s.refund(ctx, t, value, perr)
	}

	ev, err := s.remittance.Deposit(ctx, t.From, value, d.SecureCode, d.ExpiresAt)
	if err != nil {
		if remittance.IsRejection(err) {
			return s.refund(ctx, t, value, err)
		}
		return "", err
	}

	s.log.Info("deposit credited",
		zap.Uint64("lt", t.LT),
		zap.String("secure_code", d.SecureCode.Hex()),
		zap.String("amount_ton", ton.FormatTON(ev.Amount)),
		zap.String("fee_ton", ton.FormatTON(ev.Fee)),
	)
	return OutcomeDeposited, nil
}

func (s *DepositService) refund(ctx context.Context, t Transfer, value uint64, reason error) (string, error) {
	fields := []zap.Field{
		zap.Uint64("lt", t.LT),
		zap.String("from", t.From.String()),
		zap.String("amount", t.Amount.String()),
		zap.String("reason", reason.Error()),
	}
	if value < MinRefundNano {
		s.log.Warn("rejected deposit below refund minimum, keeping", fields...)
		return OutcomeKept, nil
	}

	memo := fmt.Sprintf("%s refund: %s", s.cfg.DepositCommentPrefix, refundReason(reason))
	if err := s.refunds.Transfer(ctx, t.From, value, memo); err != nil {
		return "", fmt.Errorf("refund lt=%d: %w", t.LT, err)
	}
	s.log.Info("deposit refunded", fields...)

	err := s.publisher.Publish(ctx, s.cfg.NotifyChannel, events.Event{
		Type:      events.EventDepositRefunded,
		Addresses: []string{t.From.String()},
		Payload: map[string]any{
			"tx_lt":       t.LT,
			"amount_nano": value,
			"amount_ton":  ton.FormatTON(value),
			"reason":      refundReason(reason),
		},
	})
	if err != nil {
		s.log.Warn("failed to publish refund notification", append(fields, zap.NamedError("publish_error", err))...)
	}
	return OutcomeRefunded, nil
}

// refundReason is the short text put in the refund comment.
func refundReason(err error) string {
	switch {
	case errors.Is(err, remittance.ErrAlreadyExists):
		return "code already used"
	case errors.Is(err, remittance.ErrPaused):
		return "paused"
	case errors.Is(err, remittance.ErrOverflow):
		return "amount too large"
	}
	return "invalid deposit"
}
