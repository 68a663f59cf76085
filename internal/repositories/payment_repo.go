package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/remittance/backend/internal/remittance"
)

// PaymentRepo is the Postgres ledger store. Every transaction starts by
// locking the single ledger_state row, which serialises all ledger
// operations across processes.
//
// uint64 columns are NUMERIC(20) and cross the wire as text.
type PaymentRepo struct {
	pool *pgxpool.Pool
}

var _ remittance.Store = (*PaymentRepo)(nil)

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func (r *PaymentRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx remittance.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	st, err := scanState(tx.QueryRow(ctx, selectState+` FOR UPDATE`))
	if err != nil && !errors.Is(err, remittance.ErrNotFound) {
		return err
	}

	if err := fn(ctx, &pgTx{tx: tx, state: st}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PaymentRepo) Payment(ctx context.Context, code remittance.Hash) (*remittance.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, selectPayment+` WHERE secure_code = $1`, code[:]))
}

func (r *PaymentRepo) State(ctx context.Context) (*remittance.State, error) {
	return scanState(r.pool.QueryRow(ctx, selectState))
}

func (r *PaymentRepo) Events(ctx context.Context, code remittance.Hash, limit int) ([]remittance.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, selectEvent+`
		WHERE secure_code = $1
		ORDER BY seq ASC LIMIT $2
	`, code[:], limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []remittance.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (r *PaymentRepo) Expired(ctx context.Context, now uint64, limit int) ([]remittance.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, selectPayment+`
		WHERE amount > 0 AND expires_at <= $1::text::numeric
		ORDER BY expires_at ASC, secure_code ASC LIMIT $2
	`, u64(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []remittance.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx    pgx.Tx
	state *remittance.State
}

func (t *pgTx) Payment(ctx context.Context, code remittance.Hash) (*remittance.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, selectPayment+` WHERE secure_code = $1`, code[:]))
}

func (t *pgTx) InsertPayment(ctx context.Context, p *remittance.Payment) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO payments (secure_code, sender, amount, expires_at, created_at, settled_at)
		VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5, $6)
		ON CONFLICT (secure_code) DO NOTHING
	`, p.SecureCode[:], p.Sender.String(), u64(p.Amount), u64(p.ExpiresAt), p.CreatedAt, p.SettledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", remittance.ErrAlreadyExists, p.SecureCode)
	}
	return nil
}

func (t *pgTx) UpdatePayment(ctx context.Context, p *remittance.Payment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments SET amount = $2::text::numeric, expires_at = $3::text::numeric, settled_at = $4
		WHERE secure_code = $1
	`, p.SecureCode[:], u64(p.Amount), u64(p.ExpiresAt), p.SettledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", remittance.ErrNotFound, p.SecureCode)
	}
	return nil
}

func (t *pgTx) State(context.Context) (*remittance.State, error) {
	if t.state == nil {
		return nil, fmt.Errorf("%w: ledger not initialised", remittance.ErrNotFound)
	}
	st := *t.state
	return &st, nil
}

func (t *pgTx) SaveState(ctx context.Context, s *remittance.State) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_state (id, owner, fee_amount, fee_threshold_ratio, fee_pool, running, updated_at)
		VALUES (1, $1, $2::text::numeric, $3::text::numeric, $4::text::numeric, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			fee_amount = EXCLUDED.fee_amount,
			fee_threshold_ratio = EXCLUDED.fee_threshold_ratio,
			fee_pool = EXCLUDED.fee_pool,
			running = EXCLUDED.running,
			updated_at = now()
	`, s.Owner.String(), u64(s.Fee.Amount), u64(s.Fee.ThresholdRatio), u64(s.FeePool), s.Running)
	if err != nil {
		return err
	}
	st := *s
	t.state = &st
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *remittance.Event) error {
	var code []byte
	if e.SecureCode != nil {
		code = e.SecureCode[:]
	}
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ledger_events (id, kind, secure_code, sender, exchange, owner,
		                           amount, fee, expires_at, ratio, running, created_at)
		VALUES ($1, $2, $3, $4, $5, $6,
		        $7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric, $11, $12)
		RETURNING seq
	`, e.ID, string(e.Kind), code, addrText(e.Sender), addrText(e.Exchange), addrText(e.Owner),
		u64(e.Amount), u64(e.Fee), u64(e.ExpiresAt), u64(e.Ratio), e.Running, e.At,
	).Scan(&seq)
	if err != nil {
		return err
	}
	e.Seq = uint64(seq)
	return nil
}

const (
	selectState = `
		SELECT owner, fee_amount::text, fee_threshold_ratio::text, fee_pool::text, running
		FROM ledger_state WHERE id = 1`

	selectPayment = `
		SELECT secure_code, sender, amount::text, expires_at::text, created_at, settled_at
		FROM payments`

	selectEvent = `
		SELECT id, seq, kind, secure_code, sender, exchange, owner,
		       amount::text, fee::text, expires_at::text, ratio::text, running, created_at
		FROM ledger_events`
)

func scanState(row pgx.Row) (*remittance.State, error) {
	var owner, fee, ratio, pool string
	var st remittance.State
	if err := row.Scan(&owner, &fee, &ratio, &pool, &st.Running); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: ledger not initialised", remittance.ErrNotFound)
		}
		return nil, err
	}
	var err error
	if st.Owner, err = remittance.ParseRawAddress(owner); err != nil {
		return nil, err
	}
	if st.Fee.Amount, err = parseU64(fee); err != nil {
		return nil, err
	}
	if st.Fee.ThresholdRatio, err = parseU64(ratio); err != nil {
		return nil, err
	}
	if st.FeePool, err = parseU64(pool); err != nil {
		return nil, err
	}
	return &st, nil
}

func scanPayment(row pgx.Row) (*remittance.Payment, error) {
	var code []byte
	var sender, amount, expires string
	var p remittance.Payment
	if err := row.Scan(&code, &sender, &amount, &expires, &p.CreatedAt, &p.SettledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, remittance.ErrNotFound
		}
		return nil, err
	}
	var err error
	if p.SecureCode, err = remittance.HashFromBytes(code); err != nil {
		return nil, err
	}
	if p.Sender, err = remittance.ParseRawAddress(sender); err != nil {
		return nil, err
	}
	if p.Amount, err = parseU64(amount); err != nil {
		return nil, err
	}
	if p.ExpiresAt, err = parseU64(expires); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanEvent(row pgx.Row) (*remittance.Event, error) {
	var (
		ev                      remittance.Event
		seq                     int64
		kind                    string
		code                    []byte
		sender, exchange, owner *string
		amount, fee, exp, ratio string
		createdAt               time.Time
	)
	if err := row.Scan(&ev.ID, &seq, &kind, &code, &sender, &exchange, &owner,
		&amount, &fee, &exp, &ratio, &ev.Running, &createdAt); err != nil {
		return nil, err
	}
	ev.Seq = uint64(seq)
	ev.Kind = remittance.EventKind(kind)
	ev.At = createdAt.UTC()

	var err error
	if code != nil {
		h, err := remittance.HashFromBytes(code)
		if err != nil {
			return nil, err
		}
		ev.SecureCode = &h
	}
	if ev.Sender, err = parseAddrPtr(sender); err != nil {
		return nil, err
	}
	if ev.Exchange, err = parseAddrPtr(exchange); err != nil {
		return nil, err
	}
	if ev.Owner, err = parseAddrPtr(owner); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *uint64
		src string
	}{{&ev.Amount, amount}, {&ev.Fee, fee}, {&ev.ExpiresAt, exp}, {&ev.Ratio, ratio}} {
		if *f.dst, err = parseU64(f.src); err != nil {
			return nil, err
		}
	}
	return &ev, nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("numeric column %q: %w", s, err)
	}
	return v, nil
}

func addrText(a *remittance.Address) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}

func parseAddrPtr(s *string) (*remittance.Address, error) {
	if s == nil {
		return nil, nil
	}
	a, err := remittance.ParseRawAddress(*s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
