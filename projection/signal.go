// Package projection defines the read-store projection readiness signal
// contract. The projector (external to this module, or the demo projector in
// example/demo) publishes "token T is now visible" exactly once per token,
// scoped per entity-type/entity-id/token triple; the lifecycle controller
// waits on that signal before answering commands whose events carry a
// consistency token.
package projection

import (
	"context"

	"github.com/google/uuid"
)

// ReadyWait is a registered wait for one readiness token.
type ReadyWait interface {
	// Await blocks until the token is published or the context expires.
	Await(ctx context.Context) error

	// Cancel releases the registration. Safe to call after Await and more than once.
	Cancel()
}

// ReadinessWaiter is the consumer side of the readiness signal.
// ExpectReady must be called before the corresponding event is appended, so a
// signal published between append and wait is never lost.
type ReadinessWaiter interface {
	ExpectReady(entityType string, entityID string, token uuid.UUID) (ReadyWait, error)
}

// ReadinessPublisher is the producer side of the readiness signal, used by
// the projector once the read store reflects the event carrying the token.
type ReadinessPublisher interface {
	PublishReady(ctx context.Context, entityType string, entityID string, token uuid.UUID) error
}
