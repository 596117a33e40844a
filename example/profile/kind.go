package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/entitykit/entity-lifecycle-go/entity"
)

// EntityTypeName is the entity type identifier for customer profiles.
const EntityTypeName = "CustomerProfile"

// DefaultSnapshotThreshold is the number of applied events after which a snapshot is saved.
const DefaultSnapshotThreshold = 100

var (
	// ErrEmptyProfileID occurs when a command carries no profile identifier.
	ErrEmptyProfileID = errors.New("profile id must not be empty")

	// ErrEmptyDisplayName occurs when a display name is empty or blank.
	ErrEmptyDisplayName = errors.New("display name must not be empty")

	// ErrInvalidEmailAddress occurs when an email address is malformed.
	ErrInvalidEmailAddress = errors.New("email address is invalid")

	// ErrUnknownCommandType occurs when Decide receives a command this kind does not handle.
	ErrUnknownCommandType = errors.New("unknown command type")

	// ErrUnknownEventType occurs when an event payload with an unknown type is unmarshaled.
	ErrUnknownEventType = errors.New("unknown event type")
)

var jsonAPI = jsoniter.ConfigFastest

// Kind is the entity kind descriptor for customer profiles.
// It supplies the pure state machine, the lifecycle hooks, and the
// serialization codec to the lifecycle controller.
type Kind struct {
	snapshotThreshold int
}

// BuildKind creates the customer profile kind with the default snapshot threshold.
func BuildKind() Kind {
	return Kind{snapshotThreshold: DefaultSnapshotThreshold}
}

// BuildKindWithSnapshotThreshold creates the customer profile kind with a custom
// snapshot threshold. Zero disables snapshot compaction.
func BuildKindWithSnapshotThreshold(threshold int) Kind {
	return Kind{snapshotThreshold: threshold}
}

// EntityType returns the entity type identifier.
func (k Kind) EntityType() string {
	return EntityTypeName
}

// InitialState returns the initial sentinel state for the given profile id.
func (k Kind) InitialState(entityID string) entity.State {
	return State{ID: entityID}
}

// ApplyEvent derives the next state from the current state and one event.
// Unknown events leave the state unchanged so that replay stays total when
// newer event types are read by older code.
func (k Kind) ApplyEvent(state entity.State, event entity.DomainEvent) entity.State {
	current := state.(State)

	switch actualEvent := event.(type) {
	case ProfileRegistered:
		current.ID = actualEvent.ProfileID
		current.DisplayName = actualEvent.DisplayName
		current.EmailAddress = actualEvent.EmailAddress
		current.Registered = true

	case ProfileDisplayNameChanged:
		current.DisplayName = actualEvent.DisplayName

	case ProfileEmailChanged:
		current.EmailAddress = actualEvent.EmailAddress

	case ProfileDeleted:
		current.Deleted = true
	}

	return current
}

// Decide executes the command against the current state and returns the
// events to persist, if any.
func (k Kind) Decide(state entity.State, command entity.Command) entity.DecisionResult {
	current := state.(State)

	switch actualCommand := command.(type) {
	case RegisterProfile:
		return k.decideRegisterProfile(current, actualCommand)

	case ChangeDisplayName:
		return k.decideChangeDisplayName(current, actualCommand)

	case ChangeEmail:
		return k.decideChangeEmail(current, actualCommand)

	default:
		return entity.ErrorDecision(fmt.Errorf("%w: %s", ErrUnknownCommandType, command.CommandType()))
	}
}

func (k Kind) decideRegisterProfile(current State, command RegisterProfile) entity.DecisionResult {
	if current.Registered {
		return entity.IdempotentDecision()
	}

	if strings.TrimSpace(command.ProfileID) == "" {
		return entity.ErrorDecision(ErrEmptyProfileID)
	}

	if strings.TrimSpace(command.DisplayName) == "" {
		return entity.ErrorDecision(ErrEmptyDisplayName)
	}

	if !isPlausibleEmailAddress(command.EmailAddress) {
		return entity.ErrorDecision(ErrInvalidEmailAddress)
	}

	return entity.SuccessDecision(
		BuildProfileRegistered(command.ProfileID, command.DisplayName, command.EmailAddress, time.Now()),
	)
}

func (k Kind) decideChangeDisplayName(current State, command ChangeDisplayName) entity.DecisionResult {
	if strings.TrimSpace(command.DisplayName) == "" {
		return entity.ErrorDecision(ErrEmptyDisplayName)
	}

	if current.DisplayName == command.DisplayName {
		return entity.IdempotentDecision()
	}

	return entity.SuccessDecision(
		BuildProfileDisplayNameChanged(current.ID, command.DisplayName, time.Now()),
	)
}

func (k Kind) decideChangeEmail(current State, command ChangeEmail) entity.DecisionResult {
	if !isPlausibleEmailAddress(command.EmailAddress) {
		return entity.ErrorDecision(ErrInvalidEmailAddress)
	}

	if current.EmailAddress == command.EmailAddress {
		return entity.IdempotentDecision()
	}

	return entity.SuccessDecision(
		BuildProfileEmailChanged(current.ID, command.EmailAddress, time.Now()),
	)
}

// IsCreationCommand reports whether the command may create a new profile.
func (k Kind) IsCreationCommand(command entity.Command) bool {
	_, ok := command.(RegisterProfile)
	return ok
}

// DeletionEvent returns the terminating event persisted for a deletion request.
func (k Kind) DeletionEvent(state entity.State) (entity.DomainEvent, bool) {
	return BuildProfileDeleted(state.EntityID(), time.Now()), true
}

// SnapshotThreshold returns the snapshot compaction threshold.
func (k Kind) SnapshotThreshold() int {
	return k.snapshotThreshold
}

// MarshalState serializes the profile state for snapshot storage.
func (k Kind) MarshalState(state entity.State) ([]byte, error) {
	return jsonAPI.Marshal(state.(State))
}

// UnmarshalState deserializes profile state from snapshot data.
func (k Kind) UnmarshalState(data []byte) (entity.State, error) {
	var state State
	if err := jsonAPI.Unmarshal(data, &state); err != nil {
		return nil, err
	}

	return state, nil
}

// MarshalEvent serializes a domain event payload for the event log.
func (k Kind) MarshalEvent(event entity.DomainEvent) ([]byte, error) {
	return jsonAPI.Marshal(event)
}

// UnmarshalEvent deserializes a domain event payload read from the event log.
func (k Kind) UnmarshalEvent(eventType string, payloadJSON []byte) (entity.DomainEvent, error) {
	switch eventType {
	case ProfileRegisteredEventType:
		var event ProfileRegistered
		if err := jsonAPI.Unmarshal(payloadJSON, &event); err != nil {
			return nil, err
		}
		return event, nil

	case ProfileDisplayNameChangedEventType:
		var event ProfileDisplayNameChanged
		if err := jsonAPI.Unmarshal(payloadJSON, &event); err != nil {
			return nil, err
		}
		return event, nil

	case ProfileEmailChangedEventType:
		var event ProfileEmailChanged
		if err := jsonAPI.Unmarshal(payloadJSON, &event); err != nil {
			return nil, err
		}
		return event, nil

	case ProfileDeletedEventType:
		var event ProfileDeleted
		if err := jsonAPI.Unmarshal(payloadJSON, &event); err != nil {
			return nil, err
		}
		return event, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
}

func isPlausibleEmailAddress(emailAddress string) bool {
	trimmed := strings.TrimSpace(emailAddress)
	atIndex := strings.Index(trimmed, "@")

	return atIndex > 0 && atIndex < len(trimmed)-1
}

// Ensure Kind implements entity.Kind.
var _ entity.Kind = Kind{}
