package routing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
	"github.com/entitykit/entity-lifecycle-go/eventlog/memoryengine"
	"github.com/entitykit/entity-lifecycle-go/example/profile"
	"github.com/entitykit/entity-lifecycle-go/lifecycle"
	"github.com/entitykit/entity-lifecycle-go/routing"
)

const testProfileID = "profile-1"

func Test_Execute_CreatesInstanceOnFirstDelivery(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	router := givenRouterWithProfileKind(t, log)
	defer shutdownRouter(t, router)

	// act
	response := router.Execute(ctx, profile.EntityTypeName, testProfileID, profile.RegisterProfile{
		ProfileID:    testProfileID,
		DisplayName:  "Ada",
		EmailAddress: "ada@example.com",
	})

	// assert
	require.NoError(t, response.Err)
	require.True(t, response.IsFull())
	assert.Equal(t, eventlog.Position(1), log.HeadPosition(profile.EntityTypeName, testProfileID))
}

func Test_Execute_Failed_WhenEntityTypeUnknown(t *testing.T) {
	// arrange
	ctx := context.Background()
	router := givenRouterWithProfileKind(t, memoryengine.NewEventLog())
	defer shutdownRouter(t, router)

	// act
	response := router.Execute(ctx, "UnknownKind", testProfileID, profile.RegisterProfile{ProfileID: testProfileID})

	// assert
	require.True(t, response.HasFailed())
	assert.ErrorIs(t, response.Err, routing.ErrUnknownEntityType)
}

func Test_RegisterKind_Failed_WhenRegisteredTwice(t *testing.T) {
	// arrange
	router := givenRouterWithProfileKind(t, memoryengine.NewEventLog())
	defer shutdownRouter(t, router)

	// act
	err := router.RegisterKind(profile.BuildKind())

	// assert
	assert.ErrorIs(t, err, routing.ErrKindAlreadyRegistered)
}

func Test_Router_ReusesLiveInstance_AcrossDeliveries(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	router := givenRouterWithProfileKind(t, log)
	defer shutdownRouter(t, router)

	givenRegisteredProfile(t, ctx, router)

	// act
	response := router.Execute(ctx, profile.EntityTypeName, testProfileID, profile.ChangeDisplayName{
		ProfileID:   testProfileID,
		DisplayName: "Countess",
	})

	// assert
	require.True(t, response.IsFull())
	assert.Equal(t, "Countess", response.State.(profile.State).DisplayName)
	assert.Equal(t, eventlog.Position(2), log.HeadPosition(profile.EntityTypeName, testProfileID))
}

func Test_Router_SerializesConcurrentCommands_PerEntity(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	router := givenRouterWithProfileKind(t, log)
	defer shutdownRouter(t, router)

	givenRegisteredProfile(t, ctx, router)

	names := []string{"N1", "N2", "N3", "N4", "N5", "N6", "N7", "N8"}

	// act - concurrent deliveries for the same entity must all be answered
	// without a single concurrency conflict
	var wg sync.WaitGroup
	responses := make([]struct {
		failed bool
		err    error
	}, len(names))

	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			response := router.Execute(ctx, profile.EntityTypeName, testProfileID, profile.ChangeDisplayName{
				ProfileID:   testProfileID,
				DisplayName: name,
			})
			responses[i].failed = response.HasFailed()
			responses[i].err = response.Err
		}(i, name)
	}
	wg.Wait()

	// assert
	for i := range responses {
		assert.False(t, responses[i].failed, "delivery %d failed: %v", i, responses[i].err)
	}
}

func Test_Passivation_RecreatesInstance_OnNextDelivery(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	router := givenRouterWithProfileKind(t, log, lifecycle.WithIdleWindow(30*time.Millisecond))
	defer shutdownRouter(t, router)

	givenRegisteredProfile(t, ctx, router)

	// act - wait out the idle window so the instance passivates, then deliver again
	require.Eventually(t, func() bool {
		response := router.GetState(ctx, profile.EntityTypeName, testProfileID)
		return response.IsFull() && response.State.(profile.State).DisplayName == "Ada"
	}, 2*time.Second, 100*time.Millisecond)

	// assert - the recreated instance recovered the full state from the log
	response := router.Execute(ctx, profile.EntityTypeName, testProfileID, profile.ChangeDisplayName{
		ProfileID:   testProfileID,
		DisplayName: "Countess",
	})
	require.True(t, response.IsFull())
	assert.Equal(t, eventlog.Position(2), log.HeadPosition(profile.EntityTypeName, testProfileID))
}

func Test_RequestPassivate_DrainsInflightBeforeStopping(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	router := givenRouterWithProfileKind(t, log)
	defer shutdownRouter(t, router)

	givenRegisteredProfile(t, ctx, router)

	// act - evict the instance while commands are still being delivered
	var wg sync.WaitGroup
	failures := make(chan error, 16)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			response := router.GetState(ctx, profile.EntityTypeName, testProfileID)
			if response.HasFailed() {
				failures <- response.Err
			}
		}()
	}

	router.RequestPassivate(profile.EntityTypeName, testProfileID)
	wg.Wait()
	close(failures)

	// assert
	for err := range failures {
		assert.NoError(t, err)
	}
}

func Test_RequestPassivate_NoOp_WhenInstanceUnknown(t *testing.T) {
	// arrange
	router := givenRouterWithProfileKind(t, memoryengine.NewEventLog())
	defer shutdownRouter(t, router)

	// act + assert - nothing to stop, nothing blocks
	router.RequestPassivate(profile.EntityTypeName, "never-seen")
}

func Test_Shutdown_RejectsSubsequentDeliveries(t *testing.T) {
	// arrange
	ctx := context.Background()
	router := givenRouterWithProfileKind(t, memoryengine.NewEventLog())

	givenRegisteredProfile(t, ctx, router)

	// act
	require.NoError(t, router.Shutdown(ctx))

	// assert
	response := router.GetState(ctx, profile.EntityTypeName, testProfileID)
	require.True(t, response.HasFailed())
	assert.ErrorIs(t, response.Err, routing.ErrRouterShutDown)
}

func Test_Acquire_Failed_WhenRecoveryFails(t *testing.T) {
	// arrange
	ctx := context.Background()
	log := memoryengine.NewEventLog()
	log.FailSnapshotLoadsWith(errors.New("snapshot store unavailable"))

	router := givenRouterWithProfileKind(t, log)
	defer shutdownRouter(t, router)

	// act
	response := router.GetState(ctx, profile.EntityTypeName, testProfileID)

	// assert - a failed start does not poison future deliveries
	require.True(t, response.HasFailed())
	assert.ErrorIs(t, response.Err, lifecycle.ErrRecoveryFailed)

	log.FailSnapshotLoadsWith(nil)

	retry := router.GetState(ctx, profile.EntityTypeName, testProfileID)
	assert.True(t, retry.IsEmpty())
}

func Test_NewSingleHostRouter_Failed_WhenEventLogNil(t *testing.T) {
	_, err := routing.NewSingleHostRouter(nil)

	assert.ErrorIs(t, err, lifecycle.ErrNilEventLog)
}

/*** Helpers ***/

func givenRouterWithProfileKind(
	t *testing.T,
	log lifecycle.EventLog,
	kindOptions ...lifecycle.Option,
) *routing.SingleHostRouter {

	t.Helper()

	router, err := routing.NewSingleHostRouter(log)
	require.NoError(t, err)
	require.NoError(t, router.RegisterKind(profile.BuildKindWithSnapshotThreshold(0), kindOptions...))

	return router
}

func shutdownRouter(t *testing.T, router *routing.SingleHostRouter) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, router.Shutdown(ctx))
}

func givenRegisteredProfile(t *testing.T, ctx context.Context, router *routing.SingleHostRouter) {
	t.Helper()

	response := router.Execute(ctx, profile.EntityTypeName, testProfileID, profile.RegisterProfile{
		ProfileID:    testProfileID,
		DisplayName:  "Ada",
		EmailAddress: "ada@example.com",
	})
	require.NoError(t, response.Err)
	require.True(t, response.IsFull())
}
