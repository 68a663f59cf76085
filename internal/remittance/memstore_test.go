package remittance

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStoreDiscardsFailedTx(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	code := RetrievalCodeFromStrings("staged")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.SaveState(ctx, &State{Running: true}); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, &Payment{SecureCode: code, Amount: 1}); err != nil {
			return err
		}
		if _, err := tx.Payment(ctx, code); err != nil {
			t.Errorf("tx does not see its own write: %v", err)
		}
		if err := tx.AppendEvent(ctx, &Event{Kind: EventDeposited, SecureCode: &code}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}

	if _, err := s.Payment(ctx, code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("payment leaked from failed tx: %v", err)
	}
	if _, err := s.State(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("state leaked from failed tx: %v", err)
	}
	if evs, _ := s.Events(ctx, code, 0); len(evs) != 0 {
		t.Fatalf("events leaked from failed tx: %+v", evs)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	code := RetrievalCodeFromStrings("copy")

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertPayment(ctx, &Payment{SecureCode: code, Amount: 10})
	})
	if err != nil {
		t.Fatal(err)
	}

	p, _ := s.Payment(ctx, code)
	p.Amount = 0
	again, _ := s.Payment(ctx, code)
	if again.Amount != 10 {
		t.Fatalf("caller mutated stored payment: %+v", again)
	}
}

func TestConcurrentDepositsSameCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultFee)
	code := RetrievalCodeFromStrings("race")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Deposit(ctx, f.sender, 1000, code, 2_000)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyExists):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Fatalf("ok=%d dup=%d, want exactly one success", ok, dup)
	}
}
