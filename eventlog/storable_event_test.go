package eventlog_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

func Test_BuildStorableEvent_Success_WithValidInput(t *testing.T) {
	// arrange
	occurredAt := time.Now().UTC()

	// act
	event, err := eventlog.BuildStorableEvent(
		"SomethingHappened",
		"TestEntity",
		"entity-1",
		occurredAt,
		[]byte(`{"value": 1}`),
		[]byte(`{"messageID": "abc"}`),
	)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "SomethingHappened", event.EventType)
	assert.Equal(t, "TestEntity", event.EntityType)
	assert.Equal(t, "entity-1", event.EntityID)
	assert.Equal(t, occurredAt, event.OccurredAt)
	assert.False(t, event.HasConsistencyToken())
}

func Test_BuildStorableEvent_Error_WhenEntityTypeEmpty(t *testing.T) {
	_, err := eventlog.BuildStorableEvent(
		"SomethingHappened", "", "entity-1", time.Now(), []byte(`{}`), []byte(`{}`))

	assert.ErrorIs(t, err, eventlog.ErrEmptyEntityType)
}

func Test_BuildStorableEvent_Error_WhenEntityIDEmpty(t *testing.T) {
	_, err := eventlog.BuildStorableEvent(
		"SomethingHappened", "TestEntity", "", time.Now(), []byte(`{}`), []byte(`{}`))

	assert.ErrorIs(t, err, eventlog.ErrEmptyEntityID)
}

func Test_BuildStorableEvent_Error_WhenPayloadInvalid(t *testing.T) {
	_, err := eventlog.BuildStorableEvent(
		"SomethingHappened", "TestEntity", "entity-1", time.Now(), []byte(`{not json`), []byte(`{}`))

	assert.ErrorIs(t, err, eventlog.ErrInvalidPayloadJSON)
}

func Test_BuildStorableEvent_Error_WhenMetadataInvalid(t *testing.T) {
	_, err := eventlog.BuildStorableEvent(
		"SomethingHappened", "TestEntity", "entity-1", time.Now(), []byte(`{}`), []byte(`{not json`))

	assert.ErrorIs(t, err, eventlog.ErrInvalidMetadataJSON)
}

func Test_BuildStorableEventWithEmptyMetadata_SuppliesValidMetadata(t *testing.T) {
	// act
	event, err := eventlog.BuildStorableEventWithEmptyMetadata(
		"SomethingHappened", "TestEntity", "entity-1", time.Now(), []byte(`{}`))

	// assert
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), event.MetadataJSON)
}

func Test_WithConsistencyToken_ReturnsTokenCarryingCopy(t *testing.T) {
	// arrange
	original, err := eventlog.BuildStorableEventWithEmptyMetadata(
		"SomethingHappened", "TestEntity", "entity-1", time.Now(), []byte(`{}`))
	require.NoError(t, err)

	token := uuid.New()

	// act
	withToken := original.WithConsistencyToken(token)

	// assert
	assert.True(t, withToken.HasConsistencyToken())
	assert.Equal(t, token, withToken.ConsistencyToken)
	assert.False(t, original.HasConsistencyToken())
}
