package eventlog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPayloadJSON is returned when the event payload is not valid JSON.
	ErrInvalidPayloadJSON = errors.New("payload json is not valid")

	// ErrInvalidMetadataJSON is returned when the event metadata is not valid JSON.
	ErrInvalidMetadataJSON = errors.New("metadata json is not valid")

	// ErrEmptyEntityType is returned when an empty entity type is supplied.
	ErrEmptyEntityType = errors.New("entity type must not be empty")

	// ErrEmptyEntityID is returned when an empty entity id is supplied.
	ErrEmptyEntityID = errors.New("entity id must not be empty")
)

// StorableEvents is an alias type for a slice of StorableEvent.
type StorableEvents = []StorableEvent

// StorableEvent is a DTO (data transfer object) used by the event log engines
// to append events and read them back.
//
// It is built on scalars to be completely agnostic of the implementation of
// Domain Events in the client code. Events are totally ordered per entity by
// append order; ordering across entities is undefined.
//
// ConsistencyToken is optional (uuid.Nil when absent): when set, it marks the
// event as one that must be visible in the downstream read store before the
// originating command may be answered.
//
// While its properties are exported, it should only be constructed with the
// supplied factory methods:
//   - BuildStorableEvent
//   - BuildStorableEventWithEmptyMetadata
type StorableEvent struct {
	EventType        string
	EntityType       string
	EntityID         string
	OccurredAt       time.Time
	ConsistencyToken uuid.UUID
	PayloadJSON      []byte
	MetadataJSON     []byte
}

// BuildStorableEvent is a factory method for StorableEvent.
//
// It populates the StorableEvent with the given scalar input.
// Returns an error if entityType or entityID are empty,
// or if payloadJSON or metadataJSON are not valid JSON.
func BuildStorableEvent(
	eventType string,
	entityType string,
	entityID string,
	occurredAt time.Time,
	payloadJSON []byte,
	metadataJSON []byte,
) (StorableEvent, error) {

	if entityType == "" {
		return StorableEvent{}, ErrEmptyEntityType
	}

	if entityID == "" {
		return StorableEvent{}, ErrEmptyEntityID
	}

	if !json.Valid(payloadJSON) {
		return StorableEvent{}, ErrInvalidPayloadJSON
	}

	if !json.Valid(metadataJSON) {
		return StorableEvent{}, ErrInvalidMetadataJSON
	}

	return StorableEvent{
		EventType:        eventType,
		EntityType:       entityType,
		EntityID:         entityID,
		OccurredAt:       occurredAt,
		ConsistencyToken: uuid.Nil,
		PayloadJSON:      payloadJSON,
		MetadataJSON:     metadataJSON,
	}, nil
}

// BuildStorableEventWithEmptyMetadata is a factory method for StorableEvent.
//
// It populates the StorableEvent with the given scalar input and creates valid empty JSON for MetadataJSON.
// Returns an error if payloadJSON is not valid JSON.
func BuildStorableEventWithEmptyMetadata(
	eventType string,
	entityType string,
	entityID string,
	occurredAt time.Time,
	payloadJSON []byte,
) (StorableEvent, error) {

	return BuildStorableEvent(eventType, entityType, entityID, occurredAt, payloadJSON, []byte("{}"))
}

// WithConsistencyToken returns a copy of the event carrying the given consistency token.
func (e StorableEvent) WithConsistencyToken(token uuid.UUID) StorableEvent {
	e.ConsistencyToken = token
	return e
}

// HasConsistencyToken reports whether the event carries a consistency token.
func (e StorableEvent) HasConsistencyToken() bool {
	return e.ConsistencyToken != uuid.Nil
}
