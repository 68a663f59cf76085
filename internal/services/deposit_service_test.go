package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type refundCall struct {
	to     remittance.Address
	amount uint64
	memo   string
}

type refundBank struct {
	calls []refundCall
	err   error
}

func (b *refundBank) Transfer(_ context.Context, to remittance.Address, amount uint64, memo string) error {
	if b.err != nil {
		return b.err
	}
	b.calls = append(b.calls, refundCall{to, amount, memo})
	return nil
}

func newDepositService(t *testing.T, store remittance.Store, bank *refundBank, pub *recordingPublisher) *DepositService {
	t.Helper()
	cfg := &config.Config{DepositCommentPrefix: "remit", EventsChannel: "events:test", NotifyChannel: "notify:test"}
	clock := remittance.ClockFunc(func() time.Time { return time.Unix(1_000, 0) })
	ledger := remittance.New(store, nopBank{}, remittance.WithClock(clock))
	if _, err := ledger.Init(context.Background(), addr(t, 0xAA), remittance.FeeConfig{Amount: 0, ThresholdRatio: 1000}, true); err != nil {
		t.Fatal(err)
	}
	svc := NewRemittanceService(ledger, NopAudit{}, pub, cfg, zap.NewNop())
	return NewDepositService(svc, bank, pub, cfg, zap.NewNop())
}

func TestHandleTransfer(t *testing.T) {
	sender := addr(t, 0x01)
	code := remittance.SecureCode(addr(t, 0x02), remittance.RetrievalCodeFromStrings("r"))
	good := ton.FormatDepositComment("remit", ton.Deposit{SecureCode: code, ExpiresAt: 5_000})
	past := ton.FormatDepositComment("remit", ton.Deposit{SecureCode: code, ExpiresAt: 10})

	tests := []struct {
		name       string
		comment    string
		amount     *big.Int
		want       string
		wantRefund bool
	}{
		{"plain transfer", "hello", big.NewInt(1_000_000_000), OutcomeIgnored, false},
		{"deposit", good, big.NewInt(1_000_000_000), OutcomeDeposited, false},
		{"malformed comment", "remit:nothex:1", big.NewInt(1_000_000_000), OutcomeRefunded, true},
		{"expiry in the past", past, big.NewInt(1_000_000_000), OutcomeRefunded, true},
		{"dust rejected", "remit:nothex:1", big.NewInt(5), OutcomeKept, false},
		{"too large", good, new(big.Int).Lsh(big.NewInt(1), 70), OutcomeKept, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := &refundBank{}
			pub := &recordingPublisher{}
			svc := newDepositService(t, remittance.NewMemoryStore(), bank, pub)

			got, err := svc.HandleTransfer(context.Background(), Transfer{LT: 7, From: sender, Amount: tt.amount, Comment: tt.comment})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("outcome = %q, want %q", got, tt.want)
			}
			if refunded := len(bank.calls) == 1; refunded != tt.wantRefund {
				t.Fatalf("refund calls = %d", len(bank.calls))
			}
			if tt.wantRefund {
				if bank.calls[0].to != sender || bank.calls[0].amount != tt.amount.Uint64() {
					t.Fatalf("unexpected refund: %+v", bank.calls[0])
				}
				last := pub.events[len(pub.events)-1]
				if last.Type != events.EventDepositRefunded || !last.Concerns(sender.String()) {
					t.Fatalf("unexpected notification: %+v", last)
				}
			}
		})
	}
}

func TestHandleTransferDuplicateCodeIsRefunded(t *testing.T) {
	bank := &refundBank{}
	svc := newDepositService(t, remittance.NewMemoryStore(), bank, &recordingPublisher{})
	sender := addr(t, 0x01)
	code := remittance.SecureCode(addr(t, 0x02), remittance.RetrievalCodeFromStrings("r"))
	comment := ton.FormatDepositComment("remit", ton.Deposit{SecureCode: code, ExpiresAt: 5_000})

	for i, want := range []string{OutcomeDeposited, OutcomeRefunded} {
		got, err := svc.HandleTransfer(context.Background(), Transfer{LT: uint64(i + 1), From: sender, Amount: big.NewInt(50_000_000), Comment: comment})
		if err != nil || got != want {
			t.Fatalf("transfer %d: outcome %q err %v, want %q", i, got, err, want)
		}
	}
	if len(bank.calls) != 1 || bank.calls[0].memo != "remit refund: code already used" {
		t.Fatalf("unexpected refunds: %+v", bank.calls)
	}
}

func TestHandleTransferInfrastructureFailure(t *testing.T) {
	bank := &refundBank{err: errors.New("liteserver timeout")}
	svc := newDepositService(t, remittance.NewMemoryStore(), bank, &recordingPublisher{})

	// refund failure must surface so the transfer is retried
	_, err := svc.HandleTransfer(context.Background(), Transfer{
		LT:      1,
		From:    addr(t, 0x01),
		Amount:  big.NewInt(1_000_000_000),
		Comment: "remit:nothex:1",
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRefundNotificationFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bank := &refundBank{}
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := newDepositService(t, remittance.NewMemoryStore(), bank, pub)
	svc.log = zap.New(core)

	got, err := svc.HandleTransfer(context.Background(), Transfer{
		LT:      11,
		From:    addr(t, 0x01),
		Amount:  big.NewInt(1_000_000_000),
		Comment: "remit:nothex:1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != OutcomeRefunded || len(bank.calls) != 1 {
		t.Fatalf("outcome = %q with %d refunds, want one refund", got, len(bank.calls))
	}

	entries := logs.FilterMessage("failed to publish refund notification").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	if entries[0].ContextMap()["publish_error"] != "redis down" {
		t.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}
}
