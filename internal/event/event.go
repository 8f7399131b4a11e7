// Package event defines the domain events of the product service and a small
// in-process bus that fans them out to subscribers.
package event

import (
	"fmt"
	"time"
)

// Type identifies a kind of domain event. The set is closed: webhook
// registrations may only bind to one of the types below.
type Type string

const (
	TypeProductCreated     Type = "product.created"
	TypeProductUpdated     Type = "product.updated"
	TypeProductDeleted     Type = "product.deleted"
	TypeProductBulkDeleted Type = "product.bulk_deleted"
	TypeCSVCompleted       Type = "csv.completed"
)

// Types lists every valid event type, in a stable order.
func Types() []Type {
	return []Type{
		TypeProductCreated,
		TypeProductUpdated,
		TypeProductDeleted,
		TypeProductBulkDeleted,
		TypeCSVCompleted,
	}
}

// ParseType validates a string against the closed event type set.
func ParseType(s string) (Type, error) {
	for _, t := range Types() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Event is a single domain occurrence. Events are ephemeral: produced by a
// trigger, consumed by subscribers, never persisted.
type Event struct {
	Type       Type           `json:"event"`
	OccurredAt time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"data"`
}

// New builds an event stamped with the current UTC time.
func New(t Type, payload map[string]any) Event {
	return Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
