package remittance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxExtension caps a single expireTimeExtend call.
const DefaultMaxExtension = 30 * 24 * 60 * 60

// Clock supplies "now". The ledger reads it once per operation.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Transferer moves value out of custody. It either credits the recipient in
// full or returns an error, in which case the calling operation rolls back.
type Transferer interface {
	Transfer(ctx context.Context, to Address, amount uint64, memo string) error
}

// Ledger is the escrow state machine. All state lives in the Store; the
// Ledger itself only holds wiring.
type Ledger struct {
	store        Store
	bank         Transferer
	clock        Clock
	maxExtension uint64
}

type Option func(*Ledger)

func WithClock(c Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithMaxExtension sets the largest extraSeconds accepted by ExtendExpiry.
func WithMaxExtension(seconds uint64) Option {
	return func(l *Ledger) {
		l.maxExtension = seconds
	}
}

func New(store Store, bank Transferer, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		bank:         bank,
		clock:        ClockFunc(time.Now),
		maxExtension: DefaultMaxExtension,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init creates the ledger state on first start. On later starts the stored
// state wins, except that the owner is fixed forever: a different owner is
// refused.
func (l *Ledger) Init(ctx context.Context, owner Address, fee FeeConfig, running bool) (*State, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner address is zero", ErrInvalidInput)
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}

	var out *State
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := tx.State(ctx)
		switch {
		case err == nil:
			if st.Owner != owner {
				return fmt.Errorf("%w: ledger is owned by %s", ErrUnauthorized, st.Owner)
			}
			out = st
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}
		st = &State{Owner: owner, Fee: fee, Running: running}
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deposit escrows value for the claimant bound into code until expiresAt.
func (l *Ledger) Deposit(ctx context.Context, caller Address, value uint64, code Hash, expiresAt uint64) (*Event, error) {
	now := l.clock.Now()
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: sender address is zero", ErrInvalidInput)
	}
	if code.IsZero() {
		return nil, fmt.Errorf("%w: secure code is empty", ErrInvalidInput)
	}
	if value == 0 {
		return nil, fmt.Errorf("%w: deposit value is zero", ErrInvalidInput)
	}
	if expiresAt <= unixSeconds(now) {
		return nil, fmt.Errorf("%w: expiry %d is not in the future", ErrInvalidInput, expiresAt)
	}

	var ev *Event
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := l.runningState(ctx, tx)
		if err != nil {
			return err
		}

		existing, err := tx.Payment(ctx, code)
		switch {
		case err == nil && existing.Active():
			return fmt.Errorf("%w: %s is pending", ErrAlreadyExists, code)
		case err == nil:
			return fmt.Errorf("%w: %s was already settled", ErrAlreadyExists, code)
		case !errors.Is(err, ErrNotFound):
			return err
		}

		net, fee, err := ComputeFee(value, st.Fee)
		if err != nil {
			return err
		}
		if net == 0 {
			return fmt.Errorf("%w: deposit of %d is consumed entirely by the fee", ErrInvalidInput, value)
		}
		if fee > 0 {
			if st.FeePool, err = addChecked(st.FeePool, fee); err != nil {
				return err
			}
			if err := tx.SaveState(ctx, st); err != nil {
				return err
			}
		}

		p := &Payment{
			SecureCode: code,
			Sender:     caller,
			Amount:     net,
			ExpiresAt:  expiresAt,
			CreatedAt:  now.UTC(),
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}

		ev = newEvent(EventDeposited, now)
		ev.Sender = ptr(caller)
		ev.SecureCode = ptr(code)
		ev.Amount = net
		ev.Fee = fee
		ev.ExpiresAt = expiresAt
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Withdraw pays the escrow bound to (caller, retrieval) out to the caller.
// The secure code is recomputed from the caller, so nobody but the bound
// exchange can reach the payment.
func (l *Ledger) Withdraw(ctx context.Context, caller Address, retrieval Hash) (*Event, error) {
	now := l.clock.Now()
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: exchange address is zero", ErrInvalidInput)
	}
	if retrieval.IsZero() {
		return nil, fmt.Errorf("%w: retrieval code is empty", ErrInvalidInput)
	}
	code := SecureCode(caller, retrieval)

	var ev *Event
	var out payout
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := l.runningState(ctx, tx); err != nil {
			return err
		}
		p, err := activePayment(ctx, tx, code)
		if err != nil {
			return err
		}
		if IsExpired(now, p.ExpiresAt) {
			return fmt.Errorf("%w: %s expired at %d", ErrExpired, code, p.ExpiresAt)
		}

		amount, err := settle(ctx, tx, p, now)
		if err != nil {
			return err
		}

		ev = newEvent(EventWithdrawn, now)
		ev.Exchange = ptr(caller)
		ev.SecureCode = ptr(code)
		ev.Amount = amount
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		return l.pay(ctx, &out, caller, amount, "remittance withdraw "+code.Hex())
	})
	if err != nil {
		return nil, out.check(err)
	}
	return ev, nil
}

// Reclaim returns an expired, unclaimed escrow to its sender.
func (l *Ledger) Reclaim(ctx context.Context, caller Address, code Hash) (*Event, error) {
	now := l.clock.Now()
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: sender address is zero", ErrInvalidInput)
	}
	if code.IsZero() {
		return nil, fmt.Errorf("%w: secure code is empty", ErrInvalidInput)
	}

	var ev *Event
	var out payout
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := activePayment(ctx, tx, code)
		if err != nil {
			return err
		}
		if p.Sender != caller {
			return fmt.Errorf("%w: only the sender may reclaim %s", ErrUnauthorized, code)
		}
		if !IsExpired(now, p.ExpiresAt) {
			return fmt.Errorf("%w: %s expires at %d", ErrNotYetDue, code, p.ExpiresAt)
		}

		amount, err := settle(ctx, tx, p, now)
		if err != nil {
			return err
		}

		ev = newEvent(EventDepositReclaimed, now)
		ev.Sender = ptr(caller)
		ev.SecureCode = ptr(code)
		ev.Amount = amount
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		return l.pay(ctx, &out, caller, amount, "remittance reclaim "+code.Hex())
	})
	if err != nil {
		return nil, out.check(err)
	}
	return ev, nil
}

// ExtendExpiry pushes the expiry of an active escrow back by extraSeconds.
// Only the sender may do this; the exchange must not be able to hold off
// the sender's reclaim.
func (l *Ledger) ExtendExpiry(ctx context.Context, caller Address, code Hash, extraSeconds uint64) (*Event, error) {
	now := l.clock.Now()
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: sender address is zero", ErrInvalidInput)
	}
	if code.IsZero() {
		return nil, fmt.Errorf("%w: secure code is empty", ErrInvalidInput)
	}

	var ev *Event
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := activePayment(ctx, tx, code)
		if err != nil {
			return err
		}
		if p.Sender != caller {
			return fmt.Errorf("%w: only the sender may extend %s", ErrUnauthorized, code)
		}
		if extraSeconds == 0 {
			return fmt.Errorf("%w: extension is zero", ErrInvalidInput)
		}
		if extraSeconds > l.maxExtension {
			return fmt.Errorf("%w: extension of %ds exceeds %ds", ErrLimitExceeded, extraSeconds, l.maxExtension)
		}

		if p.ExpiresAt, err = addChecked(p.ExpiresAt, extraSeconds); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}

		ev = newEvent(EventTimestampExtended, now)
		ev.Sender = ptr(caller)
		ev.SecureCode = ptr(code)
		ev.ExpiresAt = p.ExpiresAt
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// AdjustFee sets the flat fee for subsequent deposits.
func (l *Ledger) AdjustFee(ctx context.Context, caller Address, amount uint64) (*Event, error) {
	now := l.clock.Now()
	if amount > MaxFeeAmount {
		return nil, fmt.Errorf("%w: fee amount %d exceeds %d", ErrOverflow, amount, uint64(MaxFeeAmount))
	}
	return l.admin(ctx, caller, func(st *State) (*Event, error) {
		st.Fee.Amount = amount
		ev := newEvent(EventFeeAdjusted, now)
		ev.Fee = amount
		return ev, nil
	})
}

// AdjustThresholdFee sets the threshold ratio (parts per thousand).
func (l *Ledger) AdjustThresholdFee(ctx context.Context, caller Address, ratio uint64) (*Event, error) {
	now := l.clock.Now()
	return l.admin(ctx, caller, func(st *State) (*Event, error) {
		if err := validateRatio(ratio); err != nil {
			return nil, err
		}
		st.Fee.ThresholdRatio = ratio
		ev := newEvent(EventFeeThresholdAdjusted, now)
		ev.Ratio = ratio
		return ev, nil
	})
}

// SetRunning pauses or resumes deposits and withdrawals.
func (l *Ledger) SetRunning(ctx context.Context, caller Address, running bool) (*Event, error) {
	now := l.clock.Now()
	return l.admin(ctx, caller, func(st *State) (*Event, error) {
		if st.Running == running {
			return nil, fmt.Errorf("%w: running is already %t", ErrInvalidInput, running)
		}
		st.Running = running
		ev := newEvent(EventRunningSwitched, now)
		ev.Running = ptr(running)
		return ev, nil
	})
}

// WithdrawFees sends the whole fee pool to the owner.
func (l *Ledger) WithdrawFees(ctx context.Context, caller Address) (*Event, error) {
	now := l.clock.Now()
	var out payout
	ev, err := l.adminTx(ctx, caller, func(ctx context.Context, tx Tx, st *State) (*Event, error) {
		if st.FeePool == 0 {
			return nil, fmt.Errorf("%w: fee pool is empty", ErrInvalidInput)
		}
		amount := st.FeePool
		st.FeePool = 0
		if err := tx.SaveState(ctx, st); err != nil {
			return nil, err
		}
		ev := newEvent(EventFeesWithdrawn, now)
		ev.Amount = amount
		ev.Owner = ptr(caller)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
		return ev, l.pay(ctx, &out, caller, amount, "remittance fees")
	})
	if err != nil {
		return nil, out.check(err)
	}
	return ev, nil
}

// State returns owner, fee configuration, fee pool and running flag.
func (l *Ledger) State(ctx context.Context) (*State, error) {
	return l.store.State(ctx)
}

// Owner returns the identity fixed at Init.
func (l *Ledger) Owner(ctx context.Context) (Address, error) {
	st, err := l.store.State(ctx)
	if err != nil {
		return Address{}, err
	}
	return st.Owner, nil
}

// Payment returns the active escrow for code. Settled and unknown codes are
// both ErrNotFound.
func (l *Ledger) Payment(ctx context.Context, code Hash) (*Payment, error) {
	p, err := l.store.Payment(ctx, code)
	if err != nil {
		return nil, err
	}
	if !p.Active() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return p, nil
}

func (l *Ledger) Events(ctx context.Context, code Hash, limit int) ([]Event, error) {
	return l.store.Events(ctx, code, limit)
}

// Expired lists active payments that the sender can reclaim right now.
func (l *Ledger) Expired(ctx context.Context, limit int) ([]Payment, error) {
	return l.store.Expired(ctx, unixSeconds(l.clock.Now()), limit)
}

// IsExpired reports whether expiresAt has been reached. The boundary is
// inclusive: at exactly expiresAt the payment is expired.
func IsExpired(now time.Time, expiresAt uint64) bool {
	return unixSeconds(now) >= expiresAt
}

// admin runs a state-only owner operation: apply mutates the state and
// returns the event to log.
func (l *Ledger) admin(ctx context.Context, caller Address, apply func(st *State) (*Event, error)) (*Event, error) {
	return l.adminTx(ctx, caller, func(ctx context.Context, tx Tx, st *State) (*Event, error) {
		ev, err := apply(st)
		if err != nil {
			return nil, err
		}
		if err := tx.SaveState(ctx, st); err != nil {
			return nil, err
		}
		ev.Owner = ptr(caller)
		return ev, tx.AppendEvent(ctx, ev)
	})
}

func (l *Ledger) adminTx(ctx context.Context, caller Address, fn func(ctx context.Context, tx Tx, st *State) (*Event, error)) (*Event, error) {
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: caller address is zero", ErrInvalidInput)
	}
	var ev *Event
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		if st.Owner != caller {
			return fmt.Errorf("%w: owner only", ErrUnauthorized)
		}
		ev, err = fn(ctx, tx, st)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (l *Ledger) runningState(ctx context.Context, tx Tx) (*State, error) {
	st, err := tx.State(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Running {
		return nil, ErrPaused
	}
	return st, nil
}

// payout remembers whether value left custody inside a transaction.
type payout struct {
	sent   bool
	to     Address
	amount uint64
}

// pay is always the last step of a transaction, so any error seen after a
// successful pay comes from the commit.
func (l *Ledger) pay(ctx context.Context, out *payout, to Address, amount uint64, memo string) error {
	if err := l.bank.Transfer(ctx, to, amount, memo); err != nil {
		return fmt.Errorf("transfer %d to %s: %w", amount, to, err)
	}
	*out = payout{sent: true, to: to, amount: amount}
	return nil
}

func (p payout) check(err error) error {
	if !p.sent {
		return err
	}
	return fmt.Errorf("%w: %d to %s: %v", ErrPayoutNotCommitted, p.amount, p.to, err)
}

func activePayment(ctx context.Context, tx Tx, code Hash) (*Payment, error) {
	p, err := tx.Payment(ctx, code)
	if err != nil {
		return nil, err
	}
	if !p.Active() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return p, nil
}

// settle zeroes the payment and persists that before any value leaves
// custody, so a transfer can never observe (or re-enter) a payable record.
func settle(ctx context.Context, tx Tx, p *Payment, now time.Time) (uint64, error) {
	amount := p.Amount
	settledAt := now.UTC()
	p.Amount = 0
	p.SettledAt = &settledAt
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return 0, err
	}
	return amount, nil
}

func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
