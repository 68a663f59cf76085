package remittance

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventDeposited            EventKind = "Deposited"
	EventWithdrawn            EventKind = "Withdrawn"
	EventDepositReclaimed     EventKind = "DepositReclaimed"
	EventTimestampExtended    EventKind = "TimestampExtended"
	EventFeesWithdrawn        EventKind = "FeesWithdrawn"
	EventFeeAdjusted          EventKind = "FeeAdjusted"
	EventFeeThresholdAdjusted EventKind = "FeeThresholdAdjusted"
	EventRunningSwitched      EventKind = "RunningSwitched"
)

// Event is the record appended to the ledger log by every successful
// mutation. Which fields are set depends on Kind:
//
//	Deposited             Sender, Amount (net), ExpiresAt, SecureCode, Fee
//	Withdrawn             Exchange, Amount, SecureCode
//	DepositReclaimed      Sender, Amount, SecureCode
//	TimestampExtended     Sender, SecureCode, ExpiresAt (new)
//	FeesWithdrawn         Owner, Amount
//	FeeAdjusted           Owner, Fee (new flat fee)
//	FeeThresholdAdjusted  Owner, Ratio
//	RunningSwitched       Owner, Running
type Event struct {
	ID         uuid.UUID `json:"id"`
	Seq        uint64    `json:"seq"`
	Kind       EventKind `json:"kind"`
	SecureCode *Hash     `json:"secure_code,omitempty"`
	Sender     *Address  `json:"sender,omitempty"`
	Exchange   *Address  `json:"exchange,omitempty"`
	Owner      *Address  `json:"owner,omitempty"`
	Amount     uint64    `json:"amount"`
	Fee        uint64    `json:"fee"`
	ExpiresAt  uint64    `json:"expires_at,omitempty"`
	Ratio      uint64    `json:"ratio,omitempty"`
	Running    *bool     `json:"running,omitempty"`
	At         time.Time `json:"at"`
}

// Actor is the identity that triggered the event.
func (e *Event) Actor() Address {
	switch {
	case e.Sender != nil:
		return *e.Sender
	case e.Exchange != nil:
		return *e.Exchange
	case e.Owner != nil:
		return *e.Owner
	}
	return Address{}
}

func newEvent(kind EventKind, at time.Time) *Event {
	return &Event{ID: uuid.New(), Kind: kind, At: at.UTC()}
}

func ptr[T any](v T) *T {
	return &v
}
