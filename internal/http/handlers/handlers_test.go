package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/remittance"
	"go.uber.org/zap"
)

func TestLedgerStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{remittance.ErrInvalidInput, fiber.StatusBadRequest},
		{remittance.ErrOverflow, fiber.StatusBadRequest},
		{remittance.ErrUnderflow, fiber.StatusBadRequest},
		{remittance.ErrUnauthorized, fiber.StatusForbidden},
		{remittance.ErrNotFound, fiber.StatusNotFound},
		{remittance.ErrAlreadyExists, fiber.StatusConflict},
		{remittance.ErrExpired, fiber.StatusConflict},
		{remittance.ErrNotYetDue, fiber.StatusConflict},
		{remittance.ErrLimitExceeded, fiber.StatusUnprocessableEntity},
		{remittance.ErrPaused, fiber.StatusServiceUnavailable},
		{fmt.Errorf("deposit: %w", remittance.ErrAlreadyExists), fiber.StatusConflict},
		{errors.New("connection refused"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ledgerStatus(tt.err); got != tt.want {
			t.Errorf("ledgerStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type fakeConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, data)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestWSHubRoutesByAddress(t *testing.T) {
	hub := NewWSHub(nil, nil, zap.NewNop())
	alice, bob := &fakeConn{}, &fakeConn{}
	hub.register("0:aa", alice)
	hub.register("0:bb", bob)

	hub.dispatch(events.Event{Type: "Deposited", Addresses: []string{"0:aa"}})
	if alice.count() != 1 || bob.count() != 0 {
		t.Fatalf("targeted event: alice=%d bob=%d", alice.count(), bob.count())
	}

	hub.dispatch(events.Event{Type: "notice"})
	if alice.count() != 2 || bob.count() != 1 {
		t.Fatalf("broadcast event: alice=%d bob=%d", alice.count(), bob.count())
	}

	var got events.Event
	if err := json.Unmarshal(bob.msgs[0], &got); err != nil || got.Type != "notice" {
		t.Fatalf("bob got %s (%v)", bob.msgs[0], err)
	}

	hub.unregister("0:aa", alice)
	hub.dispatch(events.Event{Type: "Withdrawn", Addresses: []string{"0:aa"}})
	if alice.count() != 2 {
		t.Fatalf("unregistered connection still receives events")
	}
	if _, ok := hub.connections["0:aa"]; ok {
		t.Fatal("empty connection list not removed")
	}
}
