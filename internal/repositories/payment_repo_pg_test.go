package repositories

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/remittance/backend/internal/db"
	"github.com/remittance/backend/internal/remittance"
	"go.uber.org/zap"
)

// Postgres-backed tests run only when TEST_POSTGRES_DSN points at a scratch
// database; the ledger tables are truncated before each test.
func newTestPaymentRepo(t *testing.T) *PaymentRepo {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.RunMigrations(ctx, pool, db.Migrations(), zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE payments, ledger_events, ledger_state`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPaymentRepo(pool)
}

func testPayment(t *testing.T, seed byte, amount, expiresAt uint64) *remittance.Payment {
	t.Helper()
	account := make([]byte, 32)
	for i := range account {
		account[i] = seed
	}
	sender, err := remittance.NewAddress(0, account)
	if err != nil {
		t.Fatal(err)
	}
	return &remittance.Payment{
		SecureCode: remittance.RetrievalCodeFromStrings("pg", string(rune('a'+seed))),
		Sender:     sender,
		Amount:     amount,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Unix(1_000, 0).UTC(),
	}
}

func TestPaymentRepoInsertConflict(t *testing.T) {
	repo := newTestPaymentRepo(t)
	ctx := context.Background()
	p := testPayment(t, 1, 5_000, 2_000)

	err := repo.InTx(ctx, func(ctx context.Context, tx remittance.Tx) error {
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p); !errors.Is(err, remittance.ErrAlreadyExists) {
			t.Errorf("second insert: got %v, want ErrAlreadyExists", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := repo.Payment(ctx, p.SecureCode)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if got.Amount != 5_000 || got.Sender != p.Sender || got.ExpiresAt != 2_000 {
		t.Fatalf("stored payment = %+v", got)
	}
}

func TestPaymentRepoUpdateMissing(t *testing.T) {
	repo := newTestPaymentRepo(t)
	ctx := context.Background()

	err := repo.InTx(ctx, func(ctx context.Context, tx remittance.Tx) error {
		return tx.UpdatePayment(ctx, testPayment(t, 2, 1, 1))
	})
	if !errors.Is(err, remittance.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPaymentRepoRollsBackOnError(t *testing.T) {
	repo := newTestPaymentRepo(t)
	ctx := context.Background()
	p := testPayment(t, 3, 7_000, 2_000)
	boom := errors.New("transfer failed")

	err := repo.InTx(ctx, func(ctx context.Context, tx remittance.Tx) error {
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if _, err := repo.Payment(ctx, p.SecureCode); !errors.Is(err, remittance.ErrNotFound) {
		t.Fatalf("payment after rollback: got %v, want ErrNotFound", err)
	}
}

func TestPaymentRepoExpiredOrder(t *testing.T) {
	repo := newTestPaymentRepo(t)
	ctx := context.Background()

	late := testPayment(t, 4, 10, 300)
	early := testPayment(t, 5, 10, 100)
	middle := testPayment(t, 6, 10, 200)
	settled := testPayment(t, 7, 0, 50)
	future := testPayment(t, 8, 10, 900)

	err := repo.InTx(ctx, func(ctx context.Context, tx remittance.Tx) error {
		for _, p := range []*remittance.Payment{late, early, middle, settled, future} {
			if err := tx.InsertPayment(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := repo.Expired(ctx, 500, 10)
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	want := []remittance.Hash{early.SecureCode, middle.SecureCode, late.SecureCode}
	if len(got) != len(want) {
		t.Fatalf("expired = %d payments, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.SecureCode != want[i] {
			t.Errorf("expired[%d] = %s, want %s", i, p.SecureCode, want[i])
		}
	}

	if got, _ := repo.Expired(ctx, 500, 2); len(got) != 2 {
		t.Fatalf("limit ignored: %d payments", len(got))
	}
	if got, _ := repo.Expired(ctx, 300, 10); len(got) != 3 {
		t.Fatalf("expiry at now not listed: %d payments", len(got))
	}
}

func TestPaymentRepoLedgerRoundTrip(t *testing.T) {
	repo := newTestPaymentRepo(t)
	ctx := context.Background()

	owner := testPayment(t, 9, 0, 0).Sender
	sender := testPayment(t, 10, 0, 0).Sender
	exchange := testPayment(t, 11, 0, 0).Sender
	clock := remittance.ClockFunc(func() time.Time { return time.Unix(1_000, 0) })
	ledger := remittance.New(repo, nopTransfer{}, remittance.WithClock(clock))

	if _, err := ledger.Init(ctx, owner, remittance.FeeConfig{Amount: 29_000, ThresholdRatio: 10}, true); err != nil {
		t.Fatalf("init: %v", err)
	}
	rc := remittance.RetrievalCodeFromStrings("pg round trip")
	code := remittance.SecureCode(exchange, rc)
	if _, err := ledger.Deposit(ctx, sender, 2_900_001, code, 2_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	ev, err := ledger.Withdraw(ctx, exchange, rc)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if ev.Amount != 2_871_001 {
		t.Fatalf("withdrawn %d, want 2871001", ev.Amount)
	}
	if _, err := ledger.Deposit(ctx, sender, 2_900_001, code, 2_000); !errors.Is(err, remittance.ErrAlreadyExists) {
		t.Fatalf("re-deposit on settled code: got %v, want ErrAlreadyExists", err)
	}

	st, err := ledger.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.FeePool != 29_000 {
		t.Fatalf("fee pool = %d, want 29000", st.FeePool)
	}
	evs, err := ledger.Events(ctx, code, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Kind != remittance.EventDeposited || evs[1].Kind != remittance.EventWithdrawn {
		t.Fatalf("events = %+v", evs)
	}
}

type nopTransfer struct{}

func (nopTransfer) Transfer(context.Context, remittance.Address, uint64, string) error { return nil }
