// Package localsignal provides an in-process implementation of the
// projection readiness signal, suitable for single-node deployments and
// tests. Waiter and publisher share one Broker.
package localsignal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/entitykit/entity-lifecycle-go/projection"
)

// Broker delivers readiness signals between a projector and lifecycle
// controllers running in the same process. A token published with no
// registered wait is remembered, so registration and publication may happen
// in either order for the same triple.
type Broker struct {
	mu        sync.Mutex
	waits     map[string]chan struct{}
	published map[string]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		waits:     make(map[string]chan struct{}),
		published: make(map[string]struct{}),
	}
}

func signalKey(entityType string, entityID string, token uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s", entityType, entityID, token.String())
}

// ExpectReady registers interest in a token and returns the wait handle.
func (b *Broker) ExpectReady(entityType string, entityID string, token uuid.UUID) (projection.ReadyWait, error) {
	key := signalKey(entityType, entityID, token)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, alreadyPublished := b.published[key]; alreadyPublished {
		delete(b.published, key)

		ready := make(chan struct{})
		close(ready)

		return &wait{broker: b, key: key, ready: ready}, nil
	}

	ready, exists := b.waits[key]
	if !exists {
		ready = make(chan struct{})
		b.waits[key] = ready
	}

	return &wait{broker: b, key: key, ready: ready}, nil
}

// PublishReady signals that the token is now visible in the read store.
// Signals are delivered at most once per entity-type/entity-id/token triple.
func (b *Broker) PublishReady(_ context.Context, entityType string, entityID string, token uuid.UUID) error {
	key := signalKey(entityType, entityID, token)

	b.mu.Lock()
	defer b.mu.Unlock()

	if ready, exists := b.waits[key]; exists {
		close(ready)
		delete(b.waits, key)

		return nil
	}

	b.published[key] = struct{}{}

	return nil
}

type wait struct {
	broker *Broker
	key    string
	ready  <-chan struct{}
	once   sync.Once
}

func (w *wait) Await(ctx context.Context) error {
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *wait) Cancel() {
	w.once.Do(func() {
		w.broker.mu.Lock()
		defer w.broker.mu.Unlock()

		if pending, exists := w.broker.waits[w.key]; exists {
			// Only drop the registration if nobody was signaled yet.
			select {
			case <-pending:
			default:
				delete(w.broker.waits, w.key)
			}
		}
	})
}
