package entity

// State is the value object holding an entity's current state, derived
// entirely by replaying the entity's ordered event stream.
//
// A State value is owned exclusively by the lifecycle controller of its
// entity instance and is replaced wholesale on every event application -
// implementations must treat it as immutable and return a new value from
// Kind.ApplyEvent instead of mutating in place.
type State interface {
	// EntityID returns the string key identifying the entity instance.
	EntityID() string

	// IsInitial reports whether this state equals the initial/empty sentinel
	// value of its kind (no creation event has been applied yet).
	IsInitial() bool

	// IsDeleted reports whether the entity has been marked as deleted.
	// Once true, it never reverts for the same entity identifier.
	IsDeleted() bool
}

// Codec serializes entity state and domain events for storage.
// Implementations are supplied per entity kind; state data produced by
// MarshalState is stored in snapshots, event payloads in the event log.
type Codec interface {
	MarshalState(state State) ([]byte, error)
	UnmarshalState(data []byte) (State, error)
	MarshalEvent(event DomainEvent) ([]byte, error)
	UnmarshalEvent(eventType string, payloadJSON []byte) (DomainEvent, error)
}

// Kind is the capability set a concrete entity type supplies to the lifecycle
// controller. It combines the pure state machine (ApplyEvent, Decide), the
// lifecycle refinement hooks (IsCreationCommand, DeletionEvent), the snapshot
// compaction policy, and the serialization codec.
//
// ApplyEvent must be total and deterministic: replaying the full ordered
// history from the initial state always yields the same terminal state as
// replay from a snapshot plus the tail. The controller guarantees it is
// called in strict log order during both recovery and live operation, and
// never concurrently for the same entity instance.
type Kind interface {
	Codec

	// EntityType returns the string identifier of this entity kind.
	EntityType() string

	// InitialState returns the initial/empty sentinel state for the given entity id.
	InitialState(entityID string) State

	// ApplyEvent derives the next state from the current state and one event.
	ApplyEvent(state State, event DomainEvent) State

	// Decide executes the kind-specific command handling against the current
	// state and returns the events to persist, if any. It is only invoked for
	// commands that passed the admissibility gate.
	Decide(state State, command Command) DecisionResult

	// IsCreationCommand reports whether the command is a designated creation
	// command, admissible while the entity is still uninitialized.
	IsCreationCommand(command Command) bool

	// DeletionEvent returns the terminating event to persist for a deletion
	// request, or false if this kind does not support deletion. Kinds without
	// deletion support answer a delete request with the current state, and no
	// event is persisted.
	DeletionEvent(state State) (DomainEvent, bool)

	// SnapshotThreshold returns the number of applied events after which the
	// controller saves a snapshot. Zero disables snapshot compaction.
	SnapshotThreshold() int
}
