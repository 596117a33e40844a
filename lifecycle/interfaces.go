package lifecycle

import (
	"context"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
	"github.com/entitykit/entity-lifecycle-go/projection"
)

// EventLog defines the interface needed by the Controller for event log and
// snapshot store operations. Engines in eventlog/postgresengine and
// eventlog/memoryengine satisfy it.
type EventLog interface {
	// Append appends events to the entity's stream, expecting the stream head
	// to be at the given position. A mismatch returns
	// eventlog.ErrConcurrencyConflict and appends nothing.
	Append(
		ctx context.Context,
		entityType string,
		entityID string,
		expectedHeadPosition eventlog.Position,
		event eventlog.StorableEvent,
		additionalEvents ...eventlog.StorableEvent,
	) error

	// ReadFrom returns the entity's events after the given position in strict
	// stream order, together with the current head position of the stream
	// (zero if the stream is empty).
	ReadFrom(
		ctx context.Context,
		entityType string,
		entityID string,
		afterPosition eventlog.Position,
	) (eventlog.StorableEvents, eventlog.Position, error)

	// LatestSnapshot returns the latest snapshot for the entity, or nil if none exists.
	LatestSnapshot(ctx context.Context, entityType string, entityID string) (*eventlog.Snapshot, error)

	// SaveSnapshot stores the snapshot, replacing any previous one for the same entity.
	SaveSnapshot(ctx context.Context, snapshot eventlog.Snapshot) error

	// DeleteSnapshot removes the entity's snapshot, if any.
	DeleteSnapshot(ctx context.Context, entityType string, entityID string) error
}

// Interface aliases for the read-store projection signal, for convenience
// when wiring a controller. ExpectReady registers interest in a token before
// the corresponding event is appended, so a readiness signal published
// between append and wait is never lost. The signal is scoped per
// entity-type/entity-id/token triple and is delivered at most once per token.

// ProjectionWaiter is the consumer side of the read-store projection signal.
type ProjectionWaiter = projection.ReadinessWaiter

// ReadyWait is a registered wait for one projection-readiness token.
type ReadyWait = projection.ReadyWait

// PassivationHost is the routing layer as seen from a controller. On idle
// expiry the controller requests eviction rather than terminating
// unilaterally, so the host can drain in-flight commands addressed to the old
// reference and redirect future ones. The host acknowledges by calling
// Controller.ConfirmStop.
type PassivationHost interface {
	RequestPassivate(entityType string, entityID string)
}
