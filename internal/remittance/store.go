package remittance

import (
	"context"
	"time"
)

// Payment is one escrow, keyed by its secure code. A payment whose Amount is
// zero has been settled; it is kept so the code can never be deposited again.
type Payment struct {
	SecureCode Hash       `json:"secure_code"`
	Sender     Address    `json:"sender"`
	Amount     uint64     `json:"amount"`
	ExpiresAt  uint64     `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

// Active reports whether the payment still holds funds.
func (p *Payment) Active() bool {
	return p != nil && p.Amount > 0
}

// State is the process-wide part of the ledger.
type State struct {
	Owner   Address   `json:"owner"`
	Fee     FeeConfig `json:"fee"`
	FeePool uint64    `json:"fee_pool"`
	Running bool      `json:"running"`
}

// Store persists ledger state. InTx is the only way to mutate it: fn runs
// with exclusive access to the whole ledger and its writes become visible
// atomically, and only if fn returns nil. Reads outside InTx never observe a
// partially applied transaction.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Payment returns the record for code, settled or not, or ErrNotFound.
	Payment(ctx context.Context, code Hash) (*Payment, error)
	// State returns ErrNotFound until the ledger has been initialised.
	State(ctx context.Context) (*State, error)
	// Events returns the log for one secure code, oldest first.
	Events(ctx context.Context, code Hash, limit int) ([]Event, error)
	// Expired lists active payments with ExpiresAt <= now, oldest expiry first.
	Expired(ctx context.Context, now uint64, limit int) ([]Payment, error)
}

// Tx is the mutable view handed to Store.InTx.
type Tx interface {
	Payment(ctx context.Context, code Hash) (*Payment, error)
	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error

	State(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, s *State) error

	// AppendEvent assigns e.Seq and appends it to the log.
	AppendEvent(ctx context.Context, e *Event) error
}
