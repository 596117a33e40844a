package entity

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvents is a slice of DomainEvent instances.
type DomainEvents = []DomainEvent

// DomainEvent represents an immutable fact that has occurred for an entity.
// Events are totally ordered per entity by log append order; applying them in
// that order through Kind.ApplyEvent derives the entity's current state.
type DomainEvent interface {
	// EventType returns the string identifier for this event type.
	EventType() string

	// HasOccurredAt returns when this event occurred.
	HasOccurredAt() time.Time
}

// CarriesConsistencyToken is an optional capability of a DomainEvent.
// An event implementing it requests that the originating command is not
// answered before the downstream read-store projection reflects the event,
// identified by the returned token.
type CarriesConsistencyToken interface {
	DomainEvent
	ConsistencyToken() uuid.UUID
}

// ConsistencyTokenOf extracts the consistency token from an event, if any.
// It returns uuid.Nil and false for events without a token.
func ConsistencyTokenOf(event DomainEvent) (uuid.UUID, bool) {
	carrier, ok := event.(CarriesConsistencyToken)
	if !ok {
		return uuid.Nil, false
	}

	token := carrier.ConsistencyToken()
	if token == uuid.Nil {
		return uuid.Nil, false
	}

	return token, true
}

// OccurredAtTS represents when an event occurred.
type OccurredAtTS = time.Time

// ToOccurredAt converts a time to OccurredAtTS with UTC normalization and microsecond precision.
func ToOccurredAt(t time.Time) OccurredAtTS {
	return t.UTC().Truncate(time.Microsecond)
}
