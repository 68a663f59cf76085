package events

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/remittance/backend/internal/remittance"
)

// Event types besides the ledger kinds (Deposited, Withdrawn, ...).
const (
	EventReclaimAvailable = "reclaim_available"
	EventDepositRefunded  = "deposit_refunded"
)

// Event is the envelope carried over Redis pub/sub. Addresses lists the
// ledger identities the event concerns; the websocket hub routes on it.
type Event struct {
	Type      string         `json:"type"`
	Addresses []string       `json:"addresses,omitempty"`
	Payload   map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// FromLedger wraps a ledger event record. The payload is the record's JSON
// form so consumers see the same field names as the history endpoint.
func FromLedger(ev *remittance.Event) (Event, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return Event{}, err
	}
	// UseNumber keeps uint64 amounts exact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return Event{}, err
	}

	var addrs []string
	for _, a := range []*remittance.Address{ev.Sender, ev.Exchange, ev.Owner} {
		if a != nil {
			addrs = append(addrs, a.String())
		}
	}
	return Event{Type: string(ev.Kind), Addresses: addrs, Payload: payload}, nil
}

// Concerns reports whether addr is one of the event's addresses.
func (e Event) Concerns(addr string) bool {
	for _, a := range e.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}
