package lifecycle

import (
	"errors"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/entitykit/entity-lifecycle-go/entity"
	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

var (
	// ErrMappingToStorableEventFailed is returned when domain event serialization fails.
	ErrMappingToStorableEventFailed = errors.New("mapping to storable event failed")

	// ErrMappingToEventMetadataFailed is returned when metadata conversion fails.
	ErrMappingToEventMetadataFailed = errors.New("mapping to event metadata failed")
)

// EventMetadata contains event tracking information stored alongside each
// persisted event.
type EventMetadata struct {
	MessageID     string `json:"message_id"`
	CausationID   string `json:"causation_id"`
	CorrelationID string `json:"correlation_id"`
}

// BuildEventMetadata creates EventMetadata from UUID values.
func BuildEventMetadata(messageID uuid.UUID, causationID uuid.UUID, correlationID uuid.UUID) EventMetadata {
	return EventMetadata{
		MessageID:     messageID.String(),
		CausationID:   causationID.String(),
		CorrelationID: correlationID.String(),
	}
}

// EventMetadataFrom extracts EventMetadata from a StorableEvent.
func EventMetadataFrom(storableEvent eventlog.StorableEvent) (EventMetadata, error) {
	metadata := new(EventMetadata)

	if err := jsoniter.ConfigFastest.Unmarshal(storableEvent.MetadataJSON, metadata); err != nil {
		return EventMetadata{}, errors.Join(ErrMappingToEventMetadataFailed, err)
	}

	return *metadata, nil
}

// storableEventFrom converts a DomainEvent plus metadata to a StorableEvent
// for the given entity stream, carrying over the event's consistency token
// when present.
func storableEventFrom(
	kind entity.Kind,
	entityID string,
	event entity.DomainEvent,
	metadata EventMetadata,
) (eventlog.StorableEvent, error) {

	payloadJSON, err := kind.MarshalEvent(event)
	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailed, err)
	}

	metadataJSON, err := jsoniter.ConfigFastest.Marshal(metadata)
	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailed, err)
	}

	storableEvent, err := eventlog.BuildStorableEvent(
		event.EventType(),
		kind.EntityType(),
		entityID,
		event.HasOccurredAt(),
		payloadJSON,
		metadataJSON,
	)
	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailed, err)
	}

	if token, ok := entity.ConsistencyTokenOf(event); ok {
		storableEvent = storableEvent.WithConsistencyToken(token)
	}

	return storableEvent, nil
}
