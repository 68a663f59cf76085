package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/models"
	"github.com/remittance/backend/internal/remittance"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	stream string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, stream string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.stream = stream
	p.events = append(p.events, ev)
	return nil
}

type recordingAudit struct {
	entries []models.AuditLog
}

func (a *recordingAudit) Log(_ context.Context, entry models.AuditLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

type nopBank struct{}

func (nopBank) Transfer(context.Context, remittance.Address, uint64, string) error { return nil }

func addr(t *testing.T, seed byte) remittance.Address {
	t.Helper()
	account := make([]byte, 32)
	for i := range account {
		account[i] = seed
	}
	a, err := remittance.NewAddress(0, account)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func newTestService(t *testing.T, pub *recordingPublisher, audit *recordingAudit) (*RemittanceService, remittance.Address) {
	t.Helper()
	owner := addr(t, 0xAA)
	clock := remittance.ClockFunc(func() time.Time { return time.Unix(1_000, 0) })
	ledger := remittance.New(remittance.NewMemoryStore(), nopBank{}, remittance.WithClock(clock))
	if _, err := ledger.Init(context.Background(), owner, remittance.FeeConfig{Amount: 1000, ThresholdRatio: 10}, true); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{EventsChannel: "events:test"}
	return NewRemittanceService(ledger, audit, pub, cfg, zap.NewNop()), owner
}

func TestRemittanceServicePublishesAndAudits(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	audit := &recordingAudit{}
	svc, _ := newTestService(t, pub, audit)

	sender, exchange := addr(t, 0x01), addr(t, 0x02)
	rc := remittance.RetrievalCodeFromStrings("a", "b")
	code := remittance.SecureCode(exchange, rc)

	if _, err := svc.Deposit(ctx, sender, 200_000, code, 2_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Withdraw(ctx, exchange, rc); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if pub.stream != "events:test" {
		t.Fatalf("stream = %q", pub.stream)
	}
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	if pub.events[0].Type != string(remittance.EventDeposited) || !pub.events[0].Concerns(sender.String()) {
		t.Fatalf("unexpected first event: %+v", pub.events[0])
	}
	if pub.events[1].Type != string(remittance.EventWithdrawn) || !pub.events[1].Concerns(exchange.String()) {
		t.Fatalf("unexpected second event: %+v", pub.events[1])
	}

	if len(audit.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(audit.entries))
	}
	first := audit.entries[0]
	if first.ActorType != models.ActorTypeSender || first.Action != "ledger_Deposited" || first.EntityType != models.EntityPayment {
		t.Fatalf("unexpected audit entry: %+v", first)
	}
	if first.EntityID == nil || *first.EntityID != code.Hex() {
		t.Fatalf("audit entity id = %v, want %s", first.EntityID, code.Hex())
	}
	if audit.entries[1].ActorType != models.ActorTypeExchange {
		t.Fatalf("withdraw actor type = %q", audit.entries[1].ActorType)
	}
}

func TestRemittanceServiceRejectionHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	audit := &recordingAudit{}
	svc, _ := newTestService(t, pub, audit)

	outsider := addr(t, 0x03)
	if _, err := svc.AdjustFee(ctx, outsider, 5); !errors.Is(err, remittance.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Deposit(ctx, outsider, 0, remittance.Hash{1}, 2_000); !errors.Is(err, remittance.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	if len(pub.events) != 0 || len(audit.entries) != 0 {
		t.Fatalf("rejections produced side effects: %d events, %d audit entries", len(pub.events), len(audit.entries))
	}
}

func TestRemittanceServicePublishFailureKeepsResult(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("redis down")}
	audit := &recordingAudit{}
	svc, owner := newTestService(t, pub, audit)

	ev, err := svc.SetRunning(ctx, owner, false)
	if err != nil {
		t.Fatalf("set running: %v", err)
	}
	if ev.Kind != remittance.EventRunningSwitched {
		t.Fatalf("kind = %s", ev.Kind)
	}
	st, err := svc.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Running {
		t.Fatal("ledger still running after committed pause")
	}
	if len(audit.entries) != 1 || audit.entries[0].EntityType != models.EntityLedger {
		t.Fatalf("unexpected audit entries: %+v", audit.entries)
	}
}

// lostCommitStore fails every transaction after its body ran, like a
// connection dropped at COMMIT.
type lostCommitStore struct {
	*remittance.MemoryStore
	lost bool
}

func (s *lostCommitStore) InTx(ctx context.Context, fn func(ctx context.Context, tx remittance.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(ctx context.Context, tx remittance.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.lost {
			return errors.New("conn closed")
		}
		return nil
	})
}

func TestRemittanceServiceLogsUncommittedPayout(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &lostCommitStore{MemoryStore: remittance.NewMemoryStore()}
	clock := remittance.ClockFunc(func() time.Time { return time.Unix(1_000, 0) })
	ledger := remittance.New(store, nopBank{}, remittance.WithClock(clock))
	if _, err := ledger.Init(ctx, addr(t, 0xAA), remittance.FeeConfig{Amount: 0, ThresholdRatio: 1000}, true); err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	svc := NewRemittanceService(ledger, NopAudit{}, pub, &config.Config{EventsChannel: "events:test"}, zap.New(core))

	sender, exchange := addr(t, 0x01), addr(t, 0x02)
	rc := remittance.RetrievalCodeFromStrings("commit lost")
	code := remittance.SecureCode(exchange, rc)
	if _, err := svc.Deposit(ctx, sender, 50_000, code, 2_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	store.lost = true
	if _, err := svc.Withdraw(ctx, exchange, rc); !errors.Is(err, remittance.ErrPayoutNotCommitted) {
		t.Fatalf("got %v, want ErrPayoutNotCommitted", err)
	}

	entries := logs.FilterMessage("payout sent but ledger not updated, reconcile manually").All()
	if len(entries) != 1 {
		t.Fatalf("error entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["secure_code"]; got != code.Hex() {
		t.Fatalf("secure_code = %v, want %s", got, code.Hex())
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want only the deposit", len(pub.events))
	}
}
