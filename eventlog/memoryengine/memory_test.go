package memoryengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
	"github.com/entitykit/entity-lifecycle-go/eventlog/memoryengine"
)

const (
	testEntityType = "TestEntity"
	testEntityID   = "entity-1"
)

func Test_Append_AdvancesHead_WhenExpectedPositionMatches(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()

	// act
	err := log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "FirstHappened"))

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventlog.Position(1), log.HeadPosition(testEntityType, testEntityID))
}

func Test_Append_ConcurrencyConflict_WhenExpectedPositionStale(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	require.NoError(t, log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "FirstHappened")))

	// act - a second writer still believes the stream is empty
	err := log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "SecondHappened"))

	// assert
	require.ErrorIs(t, err, eventlog.ErrConcurrencyConflict)
	assert.Equal(t, eventlog.Position(1), log.HeadPosition(testEntityType, testEntityID))
}

func Test_Append_AllOrNothing_ForMultipleEvents(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()

	// act
	err := log.Append(ctx, testEntityType, testEntityID, 0,
		givenEvent(t, "FirstHappened"),
		givenEvent(t, "SecondHappened"),
		givenEvent(t, "ThirdHappened"))

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventlog.Position(3), log.HeadPosition(testEntityType, testEntityID))

	staleErr := log.Append(ctx, testEntityType, testEntityID, 1,
		givenEvent(t, "FourthHappened"),
		givenEvent(t, "FifthHappened"))
	require.ErrorIs(t, staleErr, eventlog.ErrConcurrencyConflict)
	assert.Equal(t, eventlog.Position(3), log.HeadPosition(testEntityType, testEntityID))
}

func Test_ReadFrom_ReturnsTailAfterPosition_InStreamOrder(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	require.NoError(t, log.Append(ctx, testEntityType, testEntityID, 0,
		givenEvent(t, "FirstHappened"),
		givenEvent(t, "SecondHappened"),
		givenEvent(t, "ThirdHappened")))

	// act
	events, head, err := log.ReadFrom(ctx, testEntityType, testEntityID, 1)

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventlog.Position(3), head)
	require.Len(t, events, 2)
	assert.Equal(t, "SecondHappened", events[0].EventType)
	assert.Equal(t, "ThirdHappened", events[1].EventType)
}

func Test_ReadFrom_ReturnsHeadWithNoEvents_WhenCaughtUp(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	require.NoError(t, log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "FirstHappened")))

	// act
	events, head, err := log.ReadFrom(ctx, testEntityType, testEntityID, 1)

	// assert
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, eventlog.Position(1), head)
}

func Test_ReadFrom_IsolatesStreams_ByEntityTypeAndID(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	require.NoError(t, log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "FirstHappened")))
	require.NoError(t, log.Append(ctx, testEntityType, "entity-2", 0, givenEvent(t, "OtherHappened")))
	require.NoError(t, log.Append(ctx, "OtherEntity", testEntityID, 0, givenEvent(t, "OtherHappened")))

	// act
	events, head, err := log.ReadFrom(ctx, testEntityType, testEntityID, 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventlog.Position(1), head)
	require.Len(t, events, 1)
	assert.Equal(t, "FirstHappened", events[0].EventType)
}

func Test_SaveSnapshot_ReplacesPreviousRecord(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	first := givenSnapshot(t, 1)
	second := givenSnapshot(t, 5)

	// act
	require.NoError(t, log.SaveSnapshot(ctx, first))
	require.NoError(t, log.SaveSnapshot(ctx, second))

	// assert
	loaded, err := log.LatestSnapshot(ctx, testEntityType, testEntityID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, eventlog.Position(5), loaded.Position)
	assert.Equal(t, 2, log.SnapshotSaveCount())
}

func Test_SaveSnapshot_RejectsInvalidSnapshot(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	invalid := eventlog.Snapshot{EntityType: testEntityType, EntityID: testEntityID, Data: []byte(`{not json`)}

	// act
	err := log.SaveSnapshot(ctx, invalid)

	// assert
	assert.ErrorIs(t, err, eventlog.ErrInvalidSnapshotJSON)
	assert.Equal(t, 0, log.SnapshotSaveCount())
}

func Test_LatestSnapshot_Nil_WhenNoneExists(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()

	// act
	snapshot, err := log.LatestSnapshot(ctx, testEntityType, testEntityID)

	// assert
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func Test_DeleteSnapshot_RemovesRecord_AndToleratesAbsence(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	require.NoError(t, log.SaveSnapshot(ctx, givenSnapshot(t, 1)))

	// act + assert
	require.NoError(t, log.DeleteSnapshot(ctx, testEntityType, testEntityID))

	snapshot, err := log.LatestSnapshot(ctx, testEntityType, testEntityID)
	require.NoError(t, err)
	assert.Nil(t, snapshot)

	assert.NoError(t, log.DeleteSnapshot(ctx, testEntityType, testEntityID))
}

func Test_FailureInjection_AppliesAndRestores(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	injected := errors.New("injected failure")

	// act + assert
	log.FailAppendsWith(injected)
	assert.ErrorIs(t, log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "FirstHappened")), injected)

	log.FailAppendsWith(nil)
	assert.NoError(t, log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "FirstHappened")))

	log.FailSnapshotSavesWith(injected)
	assert.ErrorIs(t, log.SaveSnapshot(ctx, givenSnapshot(t, 1)), injected)

	log.FailSnapshotLoadsWith(injected)
	_, err := log.LatestSnapshot(ctx, testEntityType, testEntityID)
	assert.ErrorIs(t, err, injected)
}

func Test_Operations_Fail_WhenContextCanceled(t *testing.T) {
	// arrange
	log := memoryengine.NewEventLog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act + assert
	assert.ErrorIs(t, log.Append(ctx, testEntityType, testEntityID, 0, givenEvent(t, "FirstHappened")), context.Canceled)

	_, _, readErr := log.ReadFrom(ctx, testEntityType, testEntityID, 0)
	assert.ErrorIs(t, readErr, context.Canceled)

	_, loadErr := log.LatestSnapshot(ctx, testEntityType, testEntityID)
	assert.ErrorIs(t, loadErr, context.Canceled)
}

/*** Helpers ***/

func givenEvent(t *testing.T, eventType string) eventlog.StorableEvent {
	t.Helper()

	event, err := eventlog.BuildStorableEventWithEmptyMetadata(
		eventType, testEntityType, testEntityID, time.Now().UTC(), []byte(`{}`))
	require.NoError(t, err)

	return event
}

func givenSnapshot(t *testing.T, position eventlog.Position) eventlog.Snapshot {
	t.Helper()

	snapshot, err := eventlog.BuildSnapshot(testEntityType, testEntityID, position, []byte(`{"value": 1}`))
	require.NoError(t, err)

	return snapshot
}
