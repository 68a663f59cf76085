package models

import (
	"time"

	"github.com/google/uuid"
)

// TonProofPayload is a one-time nonce handed to the wallet before it signs
// a TON Connect proof.
type TonProofPayload struct {
	ID        uuid.UUID `json:"id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"-"`
}
