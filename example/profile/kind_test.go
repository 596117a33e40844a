package profile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitykit/entity-lifecycle-go/entity"
	"github.com/entitykit/entity-lifecycle-go/example/profile"
)

const (
	testProfileID    = "profile-1"
	testDisplayName  = "Ada Lovelace"
	testEmailAddress = "ada@example.com"
)

func Test_Decide_Success_WhenProfileNotRegistered(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := kind.InitialState(testProfileID)
	command := profile.RegisterProfile{
		ProfileID:    testProfileID,
		DisplayName:  testDisplayName,
		EmailAddress: testEmailAddress,
	}

	// act
	decision := kind.Decide(state, command)

	// assert
	require.True(t, decision.HasEventsToAppend())
	require.NoError(t, decision.HasError())
	require.Len(t, decision.Events, 1)

	event, ok := decision.Events[0].(profile.ProfileRegistered)
	require.True(t, ok)
	assert.Equal(t, testProfileID, event.ProfileID)
	assert.Equal(t, testDisplayName, event.DisplayName)
	assert.Equal(t, testEmailAddress, event.EmailAddress)
}

func Test_Decide_Idempotent_WhenProfileAlreadyRegistered(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := givenRegisteredState(kind)
	command := profile.RegisterProfile{
		ProfileID:    testProfileID,
		DisplayName:  "Someone Else",
		EmailAddress: "other@example.com",
	}

	// act
	decision := kind.Decide(state, command)

	// assert
	assert.False(t, decision.HasEventsToAppend())
	assert.NoError(t, decision.HasError())
}

func Test_Decide_Error_WhenRegisteringWithBlankDisplayName(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := kind.InitialState(testProfileID)
	command := profile.RegisterProfile{
		ProfileID:    testProfileID,
		DisplayName:  "   ",
		EmailAddress: testEmailAddress,
	}

	// act
	decision := kind.Decide(state, command)

	// assert
	assert.False(t, decision.HasEventsToAppend())
	assert.ErrorIs(t, decision.HasError(), profile.ErrEmptyDisplayName)
}

func Test_Decide_Error_WhenRegisteringWithImplausibleEmail(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := kind.InitialState(testProfileID)
	command := profile.RegisterProfile{
		ProfileID:    testProfileID,
		DisplayName:  testDisplayName,
		EmailAddress: "not-an-email",
	}

	// act
	decision := kind.Decide(state, command)

	// assert
	assert.ErrorIs(t, decision.HasError(), profile.ErrInvalidEmailAddress)
}

func Test_Decide_Success_WhenDisplayNameChanges(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := givenRegisteredState(kind)
	command := profile.ChangeDisplayName{ProfileID: testProfileID, DisplayName: "Countess"}

	// act
	decision := kind.Decide(state, command)

	// assert
	require.True(t, decision.HasEventsToAppend())
	event, ok := decision.Events[0].(profile.ProfileDisplayNameChanged)
	require.True(t, ok)
	assert.Equal(t, "Countess", event.DisplayName)
}

func Test_Decide_Idempotent_WhenDisplayNameUnchanged(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := givenRegisteredState(kind)
	command := profile.ChangeDisplayName{ProfileID: testProfileID, DisplayName: testDisplayName}

	// act
	decision := kind.Decide(state, command)

	// assert
	assert.False(t, decision.HasEventsToAppend())
	assert.NoError(t, decision.HasError())
}

func Test_Decide_EmailChangeCarriesConsistencyToken(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := givenRegisteredState(kind)
	command := profile.ChangeEmail{ProfileID: testProfileID, EmailAddress: "countess@example.com"}

	// act
	decision := kind.Decide(state, command)

	// assert
	require.True(t, decision.HasEventsToAppend())
	event, ok := decision.Events[0].(profile.ProfileEmailChanged)
	require.True(t, ok)

	token, carries := entity.ConsistencyTokenOf(event)
	require.True(t, carries)
	assert.Equal(t, event.Token, token)
}

func Test_Decide_Error_WhenCommandTypeUnknown(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := kind.InitialState(testProfileID)

	// act
	decision := kind.Decide(state, unknownCommand{})

	// assert
	assert.ErrorIs(t, decision.HasError(), profile.ErrUnknownCommandType)
}

func Test_ApplyEvent_DerivesLifecycleFlags(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := kind.InitialState(testProfileID)
	require.True(t, state.IsInitial())

	// act
	state = kind.ApplyEvent(state, profile.BuildProfileRegistered(testProfileID, testDisplayName, testEmailAddress, time.Now()))

	// assert
	require.False(t, state.IsInitial())
	require.False(t, state.IsDeleted())
	assert.Equal(t, entity.Live, entity.DerivePhase(state))

	// act
	state = kind.ApplyEvent(state, profile.BuildProfileDeleted(testProfileID, time.Now()))

	// assert
	require.True(t, state.IsDeleted())
	assert.Equal(t, entity.Deleted, entity.DerivePhase(state))
}

func Test_ApplyEvent_IgnoresUnknownEventTypes(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := givenRegisteredState(kind)

	// act
	next := kind.ApplyEvent(state, unknownEvent{})

	// assert
	assert.Equal(t, state, next)
}

func Test_Codec_RoundTripsEventsByType(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	original := profile.BuildProfileEmailChanged(testProfileID, "countess@example.com", time.Now())

	payload, err := kind.MarshalEvent(original)
	require.NoError(t, err)

	// act
	decoded, err := kind.UnmarshalEvent(profile.ProfileEmailChangedEventType, payload)

	// assert
	require.NoError(t, err)
	event, ok := decoded.(profile.ProfileEmailChanged)
	require.True(t, ok)
	assert.Equal(t, original.EmailAddress, event.EmailAddress)
	assert.Equal(t, original.Token, event.Token)
}

func Test_Codec_Error_WhenEventTypeUnknown(t *testing.T) {
	// arrange
	kind := profile.BuildKind()

	// act
	_, err := kind.UnmarshalEvent("SomethingElseHappened", []byte(`{}`))

	// assert
	assert.ErrorIs(t, err, profile.ErrUnknownEventType)
}

func Test_DeletionEvent_SupportedForProfiles(t *testing.T) {
	// arrange
	kind := profile.BuildKind()
	state := givenRegisteredState(kind)

	// act
	event, supported := kind.DeletionEvent(state)

	// assert
	require.True(t, supported)
	deleted, ok := event.(profile.ProfileDeleted)
	require.True(t, ok)
	assert.Equal(t, testProfileID, deleted.ProfileID)
}

/*** Helpers ***/

func givenRegisteredState(kind profile.Kind) entity.State {
	state := kind.InitialState(testProfileID)

	return kind.ApplyEvent(state, profile.BuildProfileRegistered(testProfileID, testDisplayName, testEmailAddress, time.Now()))
}

type unknownCommand struct{}

func (c unknownCommand) CommandType() string { return "DoSomethingElse" }

type unknownEvent struct{}

func (e unknownEvent) EventType() string        { return "SomethingElseHappened" }
func (e unknownEvent) HasOccurredAt() time.Time { return time.Now() }
