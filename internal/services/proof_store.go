package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remittance/backend/internal/models"
	"github.com/remittance/backend/internal/repositories"
)

// MemoryProofStore keeps proof nonces in process memory, for the memory
// store driver.
type MemoryProofStore struct {
	mu       sync.Mutex
	payloads map[string]models.TonProofPayload
	now      func() time.Time
}

func NewMemoryProofStore() *MemoryProofStore {
	return &MemoryProofStore{payloads: make(map[string]models.TonProofPayload), now: time.Now}
}

func (s *MemoryProofStore) CreatePayload(_ context.Context, ttl time.Duration) (*models.TonProofPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := models.TonProofPayload{
		ID:        uuid.New(),
		Payload:   repositories.GenerateNonce(32),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.payloads[p.Payload] = p
	return &p, nil
}

func (s *MemoryProofStore) ConsumePayload(_ context.Context, payload string) (*models.TonProofPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payloads[payload]
	if !ok || p.Used || !s.now().Before(p.ExpiresAt) {
		return nil, repositories.ErrPayloadNotFound
	}
	p.Used = true
	s.payloads[payload] = p
	return &p, nil
}

// DeleteExpired drops nonces that can no longer be consumed.
func (s *MemoryProofStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for k, p := range s.payloads {
		if p.Used || !now.Before(p.ExpiresAt) {
			delete(s.payloads, k)
			n++
		}
	}
	return n, nil
}
