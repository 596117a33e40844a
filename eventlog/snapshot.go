package eventlog

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidSnapshotJSON is returned when snapshot JSON data is malformed or invalid.
	ErrInvalidSnapshotJSON = errors.New("snapshot json is not valid")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")

	// ErrDeletingSnapshotFailed is returned when the snapshot delete operation fails.
	ErrDeletingSnapshotFailed = errors.New("deleting snapshot failed")
)

// Snapshot is a point-in-time copy of an entity's state plus the stream
// position it corresponds to. It is purely a recovery-speed optimization and
// never required for correctness: full replay from the beginning of the
// stream always reproduces the same state.
type Snapshot struct {
	EntityType string          // Entity kind this snapshot belongs to (e.g. "CustomerProfile")
	EntityID   string          // Identifier of the entity instance
	Position   Position        // Stream position of the last event reflected in the state
	Data       json.RawMessage // Serialized entity state as JSON
	CreatedAt  time.Time       // When this snapshot was created/updated
}

// Validate ensures the snapshot has valid data for storage operations.
func (s Snapshot) Validate() error {
	if s.EntityType == "" {
		return ErrEmptyEntityType
	}

	if s.EntityID == "" {
		return ErrEmptyEntityID
	}

	if !jsoniter.ConfigFastest.Valid(s.Data) {
		return ErrInvalidSnapshotJSON
	}

	return nil
}

// BuildSnapshot creates a new Snapshot with validation.
func BuildSnapshot(
	entityType string,
	entityID string,
	position Position,
	data json.RawMessage,
) (Snapshot, error) {

	snapshot := Snapshot{
		EntityType: entityType,
		EntityID:   entityID,
		Position:   position,
		Data:       data,
		CreatedAt:  time.Now(),
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}
