package entity_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/entitykit/entity-lifecycle-go/entity"
)

type fakeState struct {
	initial bool
	deleted bool
}

func (s fakeState) EntityID() string { return "fake-1" }
func (s fakeState) IsInitial() bool  { return s.initial }
func (s fakeState) IsDeleted() bool  { return s.deleted }

type fakeCommand struct {
	commandType string
}

func (c fakeCommand) CommandType() string { return c.commandType }

type fakeEvent struct{}

func (e fakeEvent) EventType() string        { return "FakeHappened" }
func (e fakeEvent) HasOccurredAt() time.Time { return time.Time{} }

type fakeTokenEvent struct {
	token uuid.UUID
}

func (e fakeTokenEvent) EventType() string           { return "FakeTokenHappened" }
func (e fakeTokenEvent) HasOccurredAt() time.Time    { return time.Time{} }
func (e fakeTokenEvent) ConsistencyToken() uuid.UUID { return e.token }

// fakeKind designates the "Create" command type as its creation command and
// leaves everything else at trivial behavior.
type fakeKind struct{}

func (k fakeKind) EntityType() string { return "FakeEntity" }

func (k fakeKind) InitialState(string) entity.State { return fakeState{initial: true} }

func (k fakeKind) ApplyEvent(state entity.State, _ entity.DomainEvent) entity.State { return state }

func (k fakeKind) Decide(entity.State, entity.Command) entity.DecisionResult {
	return entity.IdempotentDecision()
}

func (k fakeKind) IsCreationCommand(command entity.Command) bool {
	return command.CommandType() == "Create"
}

func (k fakeKind) DeletionEvent(entity.State) (entity.DomainEvent, bool) { return nil, false }

func (k fakeKind) SnapshotThreshold() int { return 0 }

func (k fakeKind) MarshalState(entity.State) ([]byte, error) { return []byte(`{}`), nil }

func (k fakeKind) UnmarshalState([]byte) (entity.State, error) { return fakeState{}, nil }

func (k fakeKind) MarshalEvent(entity.DomainEvent) ([]byte, error) { return []byte(`{}`), nil }

func (k fakeKind) UnmarshalEvent(string, []byte) (entity.DomainEvent, error) {
	return fakeEvent{}, nil
}

func mustNewToken(t *testing.T) uuid.UUID {
	t.Helper()

	token, err := uuid.NewRandom()
	require.NoError(t, err)

	return token
}
