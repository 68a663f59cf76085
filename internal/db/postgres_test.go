package db

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestWaitReadyRetries(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	}
	if err := waitReady(context.Background(), zap.NewNop(), "test", ping); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestWaitReadyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ping := func(context.Context) error { return errors.New("down") }
	if err := waitReady(ctx, zap.NewNop(), "test", ping); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
