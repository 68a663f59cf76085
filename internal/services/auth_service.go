package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/remittance/backend/internal/auth"
	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/models"
	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

// ErrInvalidProof covers every reason a TON Connect login is refused.
var ErrInvalidProof = errors.New("invalid ton proof")

// TON Connect network ids.
const (
	NetworkMainnet = "-239"
	NetworkTestnet = "-3"
)

type ProofStore interface {
	CreatePayload(ctx context.Context, ttl time.Duration) (*models.TonProofPayload, error)
	ConsumePayload(ctx context.Context, payload string) (*models.TonProofPayload, error)
}

// KeyResolver looks up the key a deployed wallet contract holds.
type KeyResolver interface {
	PublicKey(ctx context.Context, addr remittance.Address) ([]byte, error)
}

// AuthService turns a signed TON Connect proof into a session JWT whose
// subject is the wallet address. That address is the caller identity for
// every ledger operation.
type AuthService struct {
	proofs ProofStore
	keys   KeyResolver // nil: trust the key sent by the wallet
	audit  AuditLogger
	cfg    *config.Config
	now    func() time.Time
	log    *zap.Logger
}

func NewAuthService(proofs ProofStore, keys KeyResolver, audit AuditLogger, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{
		proofs: proofs,
		keys:   keys,
		audit:  audit,
		cfg:    cfg,
		now:    time.Now,
		log:    log,
	}
}

type LoginResult struct {
	Token     string
	Address   remittance.Address
	ExpiresAt time.Time
}

// GeneratePayload создаёт nonce для TON Proof.
func (s *AuthService) GeneratePayload(ctx context.Context) (*models.TonProofPayload, error) {
	p, err := s.proofs.CreatePayload(ctx, s.cfg.ProofTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof payload: %w", err)
	}
	return p, nil
}

func (s *AuthService) Login(ctx context.Context, req ton.ProofData) (*LoginResult, error) {
	// 1. Nonce одноразовый: сжигаем его до проверки подписи
	if _, err := s.proofs.ConsumePayload(ctx, req.Proof.Payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidProof, err)
	}

	// 2. Адрес
	addr, err := ton.ParseAddress(req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: address: %v", ErrInvalidProof, err)
	}

	// 3. Сеть
	if want := s.networkID(); req.Network != "" && req.Network != want {
		return nil, fmt.Errorf("%w: network mismatch: expected %s, got %s", ErrInvalidProof, want, req.Network)
	}

	// 4. Ключ
	pubKey, err := s.publicKey(ctx, addr, req.PublicKey)
	if err != nil {
		return nil, err
	}

	// 5. Подпись
	if err := ton.VerifyProof(pubKey, addr, req.Proof, s.cfg.TONProofAllowedDomains, s.now()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	token, err := auth.GenerateJWT(s.cfg.JWTSecret, addr, s.networkID(), s.cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to generate jwt: %w", err)
	}

	actor := addr.String()
	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      &actor,
		ActorType:  models.ActorTypeSystem,
		Action:     "ton_proof_login",
		EntityType: models.EntityLedger,
		Meta:       map[string]any{"domain": req.Proof.Domain.Value, "network": req.Network},
	})

	s.log.Info("wallet logged in", zap.String("address", actor))

	expiration := s.cfg.JWTExpiration
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &LoginResult{Token: token, Address: addr, ExpiresAt: s.now().Add(expiration)}, nil
}

// publicKey prefers the key stored in the wallet contract. Undeployed
// wallets have none, so the key supplied by the wallet is used as is.
func (s *AuthService) publicKey(ctx context.Context, addr remittance.Address, claimed string) ([]byte, error) {
	var key []byte
	if claimed != "" {
		k, err := ton.DecodePublicKey(claimed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
		key = k
	}

	if s.keys != nil {
		onChain, err := s.keys.PublicKey(ctx, addr)
		switch {
		case err != nil:
			s.log.Debug("on-chain public key unavailable", zap.String("address", addr.String()), zap.Error(err))
		case key != nil && !bytes.Equal(key, onChain):
			return nil, fmt.Errorf("%w: public key does not match wallet contract", ErrInvalidProof)
		default:
			key = onChain
		}
	}

	if key == nil {
		return nil, fmt.Errorf("%w: public key is required", ErrInvalidProof)
	}
	return key, nil
}

func (s *AuthService) networkID() string {
	if s.cfg.TONNetwork == "testnet" {
		return NetworkTestnet
	}
	return NetworkMainnet
}
