package localsignal_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitykit/entity-lifecycle-go/projection/localsignal"
)

const (
	testEntityType = "TestEntity"
	testEntityID   = "entity-1"
)

func Test_Await_Returns_WhenTokenPublishedAfterExpect(t *testing.T) {
	// arrange
	ctx := context.Background()
	broker := localsignal.NewBroker()
	token := uuid.New()

	wait, err := broker.ExpectReady(testEntityType, testEntityID, token)
	require.NoError(t, err)
	defer wait.Cancel()

	// act
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = broker.PublishReady(ctx, testEntityType, testEntityID, token)
	}()

	awaitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	// assert
	assert.NoError(t, wait.Await(awaitCtx))
}

func Test_Await_Returns_WhenTokenPublishedBeforeExpect(t *testing.T) {
	// arrange
	ctx := context.Background()
	broker := localsignal.NewBroker()
	token := uuid.New()

	require.NoError(t, broker.PublishReady(ctx, testEntityType, testEntityID, token))

	// act
	wait, err := broker.ExpectReady(testEntityType, testEntityID, token)
	require.NoError(t, err)
	defer wait.Cancel()

	awaitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	// assert
	assert.NoError(t, wait.Await(awaitCtx))
}

func Test_Await_Fails_WhenContextExpiresFirst(t *testing.T) {
	// arrange
	broker := localsignal.NewBroker()

	wait, err := broker.ExpectReady(testEntityType, testEntityID, uuid.New())
	require.NoError(t, err)
	defer wait.Cancel()

	awaitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// act + assert
	assert.ErrorIs(t, wait.Await(awaitCtx), context.DeadlineExceeded)
}

func Test_Signals_AreScopedPerTriple(t *testing.T) {
	// arrange
	ctx := context.Background()
	broker := localsignal.NewBroker()
	token := uuid.New()

	wait, err := broker.ExpectReady(testEntityType, testEntityID, token)
	require.NoError(t, err)
	defer wait.Cancel()

	// act - same token published for a different entity id
	require.NoError(t, broker.PublishReady(ctx, testEntityType, "entity-2", token))

	awaitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	// assert
	assert.ErrorIs(t, wait.Await(awaitCtx), context.DeadlineExceeded)
}

func Test_SharedWait_AllAwaitersReleased_OnOnePublish(t *testing.T) {
	// arrange
	ctx := context.Background()
	broker := localsignal.NewBroker()
	token := uuid.New()

	first, err := broker.ExpectReady(testEntityType, testEntityID, token)
	require.NoError(t, err)
	defer first.Cancel()

	second, err := broker.ExpectReady(testEntityType, testEntityID, token)
	require.NoError(t, err)
	defer second.Cancel()

	// act
	require.NoError(t, broker.PublishReady(ctx, testEntityType, testEntityID, token))

	awaitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	// assert
	assert.NoError(t, first.Await(awaitCtx))
	assert.NoError(t, second.Await(awaitCtx))
}

func Test_Cancel_DropsRegistration_AndIsIdempotent(t *testing.T) {
	// arrange
	ctx := context.Background()
	broker := localsignal.NewBroker()
	token := uuid.New()

	wait, err := broker.ExpectReady(testEntityType, testEntityID, token)
	require.NoError(t, err)

	// act
	wait.Cancel()
	wait.Cancel()

	// a publish after cancellation is remembered for the next registration
	require.NoError(t, broker.PublishReady(ctx, testEntityType, testEntityID, token))

	fresh, err := broker.ExpectReady(testEntityType, testEntityID, token)
	require.NoError(t, err)
	defer fresh.Cancel()

	awaitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	// assert
	assert.NoError(t, fresh.Await(awaitCtx))
}
