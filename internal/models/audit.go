package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActorTypeSender   = "sender"
	ActorTypeExchange = "exchange"
	ActorTypeOwner    = "owner"
	ActorTypeSystem   = "system"

	EntityPayment = "payment"
	EntityLedger  = "ledger"
)

type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	Actor      *string   `json:"actor,omitempty"` // raw address
	ActorType  string    `json:"actor_type"`      // sender/exchange/owner/system
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   *string   `json:"entity_id,omitempty"` // secure code hex
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
