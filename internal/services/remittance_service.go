package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/models"
	"github.com/remittance/backend/internal/remittance"
	"go.uber.org/zap"
)

// AuditLogger is satisfied by repositories.AuditRepo.
type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// NopAudit drops audit entries; used with the in-memory store.
type NopAudit struct{}

func (NopAudit) Log(context.Context, models.AuditLog) error { return nil }

// RemittanceService fronts the ledger for every entry point (HTTP, indexer,
// worker): it runs the operation, then writes the audit entry and publishes
// the event. Publishing happens after commit; a publish failure is logged
// and never undoes a committed operation.
type RemittanceService struct {
	ledger    *remittance.Ledger
	audit     AuditLogger
	publisher events.Publisher
	channel   string
	log       *zap.Logger
}

func NewRemittanceService(
	ledger *remittance.Ledger,
	audit AuditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *RemittanceService {
	return &RemittanceService{
		ledger:    ledger,
		audit:     audit,
		publisher: publisher,
		channel:   cfg.EventsChannel,
		log:       log,
	}
}

func (s *RemittanceService) Deposit(ctx context.Context, sender remittance.Address, value uint64, code remittance.Hash, expiresAt uint64) (*remittance.Event, error) {
	ev, err := s.ledger.Deposit(ctx, sender, value, code, expiresAt)
	if err != nil {
		return nil, s.rejected("deposit", err,
			zap.String("sender", sender.String()),
			zap.Uint64("value", value),
			zap.String("secure_code", code.Hex()),
		)
	}
	s.record(ctx, ev, models.ActorTypeSender)
	return ev, nil
}

func (s *RemittanceService) Withdraw(ctx context.Context, exchange remittance.Address, retrieval remittance.Hash) (*remittance.Event, error) {
	ev, err := s.ledger.Withdraw(ctx, exchange, retrieval)
	if err != nil {
		return nil, s.rejected("withdraw", err,
			zap.String("exchange", exchange.String()),
			zap.String("secure_code", remittance.SecureCode(exchange, retrieval).Hex()),
		)
	}
	s.record(ctx, ev, models.ActorTypeExchange)
	return ev, nil
}

func (s *RemittanceService) Reclaim(ctx context.Context, sender remittance.Address, code remittance.Hash) (*remittance.Event, error) {
	ev, err := s.ledger.Reclaim(ctx, sender, code)
	if err != nil {
		return nil, s.rejected("reclaim", err,
			zap.String("sender", sender.String()),
			zap.String("secure_code", code.Hex()),
		)
	}
	s.record(ctx, ev, models.ActorTypeSender)
	return ev, nil
}

func (s *RemittanceService) ExtendExpiry(ctx context.Context, sender remittance.Address, code remittance.Hash, extraSeconds uint64) (*remittance.Event, error) {
	ev, err := s.ledger.ExtendExpiry(ctx, sender, code, extraSeconds)
	if err != nil {
		return nil, s.rejected("extend", err,
			zap.String("sender", sender.String()),
			zap.String("secure_code", code.Hex()),
			zap.Uint64("extra_seconds", extraSeconds),
		)
	}
	s.record(ctx, ev, models.ActorTypeSender)
	return ev, nil
}

func (s *RemittanceService) AdjustFee(ctx context.Context, owner remittance.Address, amount uint64) (*remittance.Event, error) {
	ev, err := s.ledger.AdjustFee(ctx, owner, amount)
	if err != nil {
		return nil, s.rejected("adjust_fee", err, zap.String("caller", owner.String()), zap.Uint64("fee", amount))
	}
	s.record(ctx, ev, models.ActorTypeOwner)
	return ev, nil
}

func (s *RemittanceService) AdjustThresholdFee(ctx context.Context, owner remittance.Address, ratio uint64) (*remittance.Event, error) {
	ev, err := s.ledger.AdjustThresholdFee(ctx, owner, ratio)
	if err != nil {
		return nil, s.rejected("adjust_threshold_fee", err, zap.String("caller", owner.String()), zap.Uint64("ratio", ratio))
	}
	s.record(ctx, ev, models.ActorTypeOwner)
	return ev, nil
}

func (s *RemittanceService) WithdrawFees(ctx context.Context, owner remittance.Address) (*remittance.Event, error) {
	ev, err := s.ledger.WithdrawFees(ctx, owner)
	if err != nil {
		return nil, s.rejected("withdraw_fees", err, zap.String("caller", owner.String()))
	}
	s.record(ctx, ev, models.ActorTypeOwner)
	return ev, nil
}

// SetRunning pauses (false) or resumes (true) deposits and withdrawals.
func (s *RemittanceService) SetRunning(ctx context.Context, owner remittance.Address, running bool) (*remittance.Event, error) {
	ev, err := s.ledger.SetRunning(ctx, owner, running)
	if err != nil {
		return nil, s.rejected("set_running", err, zap.String("caller", owner.String()), zap.Bool("running", running))
	}
	s.record(ctx, ev, models.ActorTypeOwner)
	return ev, nil
}

func (s *RemittanceService) State(ctx context.Context) (*remittance.State, error) {
	return s.ledger.State(ctx)
}

func (s *RemittanceService) Payment(ctx context.Context, code remittance.Hash) (*remittance.Payment, error) {
	return s.ledger.Payment(ctx, code)
}

func (s *RemittanceService) Events(ctx context.Context, code remittance.Hash, limit int) ([]remittance.Event, error) {
	return s.ledger.Events(ctx, code, limit)
}

func (s *RemittanceService) Expired(ctx context.Context, limit int) ([]remittance.Payment, error) {
	return s.ledger.Expired(ctx, limit)
}

// record runs after commit.
func (s *RemittanceService) record(ctx context.Context, ev *remittance.Event, actorType string) {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.Uint64("seq", ev.Seq),
		zap.String("actor", ev.Actor().String()),
		zap.Uint64("amount", ev.Amount),
	}
	if ev.SecureCode != nil {
		fields = append(fields, zap.String("secure_code", ev.SecureCode.Hex()))
	}
	if ev.Fee > 0 {
		fields = append(fields, zap.Uint64("fee", ev.Fee))
	}
	s.log.Info("ledger event", fields...)

	actor := ev.Actor().String()
	entry := models.AuditLog{
		Actor:      &actor,
		ActorType:  actorType,
		Action:     auditAction(ev.Kind),
		EntityType: models.EntityLedger,
		Meta:       ev,
	}
	if ev.SecureCode != nil {
		code := ev.SecureCode.Hex()
		entry.EntityType = models.EntityPayment
		entry.EntityID = &code
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}

	out, err := events.FromLedger(ev)
	if err != nil {
		s.log.Error("failed to encode ledger event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, s.channel, out); err != nil {
		s.log.Warn("failed to publish ledger event",
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("seq", ev.Seq),
			zap.Error(err),
		)
	}
}

// rejected logs err at a level matching its kind and returns it unchanged.
func (s *RemittanceService) rejected(op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	switch {
	case errors.Is(err, remittance.ErrPayoutNotCommitted):
		s.log.Error("payout sent but ledger not updated, reconcile manually", fields...)
	case remittance.IsRejection(err):
		s.log.Debug("ledger operation rejected", fields...)
	default:
		s.log.Error("ledger operation failed", fields...)
	}
	return err
}

func auditAction(kind remittance.EventKind) string {
	return fmt.Sprintf("ledger_%s", kind)
}
