package remittance

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps the ledger in process memory. Transactions are
// serialised by a mutex and staged until fn returns nil.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[Hash]Payment
	state    *State
	events   []Event
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[Hash]Payment)}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, payments: make(map[Hash]Payment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for code, p := range tx.payments {
		s.payments[code] = p
	}
	if tx.state != nil {
		st := *tx.state
		s.state = &st
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *MemoryStore) Payment(_ context.Context, code Hash) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return clonePayment(p), nil
}

func (s *MemoryStore) State(_ context.Context) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, fmt.Errorf("%w: ledger not initialised", ErrNotFound)
	}
	st := *s.state
	return &st, nil
}

func (s *MemoryStore) Events(_ context.Context, code Hash, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.SecureCode == nil || *e.SecureCode != code {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Expired(_ context.Context, now uint64, limit int) ([]Payment, error) {
	s.mu.RLock()
	var out []Payment
	for _, p := range s.payments {
		if p.Active() && p.ExpiresAt <= now {
			out = append(out, *clonePayment(p))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt != out[j].ExpiresAt {
			return out[i].ExpiresAt < out[j].ExpiresAt
		}
		return bytes.Compare(out[i].SecureCode[:], out[j].SecureCode[:]) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memTx reads through its own staged writes to the committed store.
type memTx struct {
	store    *MemoryStore
	payments map[Hash]Payment
	state    *State
	events   []Event
}

func (t *memTx) Payment(_ context.Context, code Hash) (*Payment, error) {
	if p, ok := t.payments[code]; ok {
		return clonePayment(p), nil
	}
	if p, ok := t.store.payments[code]; ok {
		return clonePayment(p), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
}

func (t *memTx) InsertPayment(ctx context.Context, p *Payment) error {
	if _, err := t.Payment(ctx, p.SecureCode); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, p.SecureCode)
	}
	t.payments[p.SecureCode] = *clonePayment(*p)
	return nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *Payment) error {
	if _, err := t.Payment(ctx, p.SecureCode); err != nil {
		return err
	}
	t.payments[p.SecureCode] = *clonePayment(*p)
	return nil
}

func (t *memTx) State(_ context.Context) (*State, error) {
	src := t.state
	if src == nil {
		src = t.store.state
	}
	if src == nil {
		return nil, fmt.Errorf("%w: ledger not initialised", ErrNotFound)
	}
	st := *src
	return &st, nil
}

func (t *memTx) SaveState(_ context.Context, s *State) error {
	st := *s
	t.state = &st
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e *Event) error {
	e.Seq = uint64(len(t.store.events)+len(t.events)) + 1
	t.events = append(t.events, *e)
	return nil
}

func clonePayment(p Payment) *Payment {
	if p.SettledAt != nil {
		at := *p.SettledAt
		p.SettledAt = &at
	}
	return &p
}
