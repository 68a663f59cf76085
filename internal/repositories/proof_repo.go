package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/remittance/backend/internal/models"
)

var ErrPayloadNotFound = errors.New("proof payload not found, used or expired")

// ProofRepo stores TON Connect proof nonces.
type ProofRepo struct {
	pool *pgxpool.Pool
}

func NewProofRepo(pool *pgxpool.Pool) *ProofRepo {
	return &ProofRepo{pool: pool}
}

func (r *ProofRepo) CreatePayload(ctx context.Context, ttl time.Duration) (*models.TonProofPayload, error) {
	p := &models.TonProofPayload{Payload: GenerateNonce(32)}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ton_proof_payloads (payload, expires_at)
		VALUES ($1, now() + $2::interval)
		RETURNING id, created_at, expires_at
	`, p.Payload, ttl.String()).Scan(&p.ID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ConsumePayload marks the nonce used. A nonce is accepted once.
func (r *ProofRepo) ConsumePayload(ctx context.Context, payload string) (*models.TonProofPayload, error) {
	var p models.TonProofPayload
	err := r.pool.QueryRow(ctx, `
		UPDATE ton_proof_payloads
		SET used = true
		WHERE payload = $1 AND used = false AND expires_at > now()
		RETURNING id, payload, created_at, expires_at, used
	`, payload).Scan(&p.ID, &p.Payload, &p.CreatedAt, &p.ExpiresAt, &p.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayloadNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DeleteExpired drops nonces that can no longer be consumed.
func (r *ProofRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ton_proof_payloads WHERE expires_at < now() OR used`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func GenerateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
