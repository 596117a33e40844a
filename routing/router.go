// Package routing maps entity identifiers to live lifecycle controller
// instances. SingleHostRouter is the single-process implementation of the
// routing contract: it creates a controller on first delivery, guarantees at
// most one live instance per identifier, and honors the passivation
// handshake by draining in-flight commands before acknowledging a stop.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entitykit/entity-lifecycle-go/entity"
	"github.com/entitykit/entity-lifecycle-go/lifecycle"
)

var (
	// ErrUnknownEntityType is returned when a command addresses an entity kind
	// that was never registered with the router.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrKindAlreadyRegistered is returned when a kind is registered twice.
	ErrKindAlreadyRegistered = errors.New("entity kind already registered")

	// ErrRouterShutDown is returned for deliveries after Shutdown.
	ErrRouterShutDown = errors.New("router shut down")
)

type instanceKey struct {
	entityType string
	entityID   string
}

type instance struct {
	controller *lifecycle.Controller
	ready      chan struct{}
	startErr   error
	inflight   sync.WaitGroup
}

type registeredKind struct {
	kind    entity.Kind
	options []lifecycle.Option
}

// SingleHostRouter delivers commands addressed by entity identifier to the
// correct live controller instance within one process.
type SingleHostRouter struct {
	log             lifecycle.EventLog
	defaultOptions  []lifecycle.Option
	mu              sync.Mutex
	kinds           map[string]registeredKind
	instances       map[instanceKey]*instance
	shutDown        bool
	passivations    sync.WaitGroup
}

// RouterOption defines a functional option for configuring a SingleHostRouter.
type RouterOption func(*SingleHostRouter) error

// WithControllerOptions sets lifecycle options applied to every controller
// instance the router creates, before any per-kind options.
func WithControllerOptions(options ...lifecycle.Option) RouterOption {
	return func(r *SingleHostRouter) error {
		r.defaultOptions = append(r.defaultOptions, options...)
		return nil
	}
}

// NewSingleHostRouter creates a router over the given event log.
func NewSingleHostRouter(log lifecycle.EventLog, options ...RouterOption) (*SingleHostRouter, error) {
	if log == nil {
		return nil, lifecycle.ErrNilEventLog
	}

	router := &SingleHostRouter{
		log:       log,
		kinds:     make(map[string]registeredKind),
		instances: make(map[instanceKey]*instance),
	}

	for _, option := range options {
		if err := option(router); err != nil {
			return nil, err
		}
	}

	return router, nil
}

// RegisterKind makes an entity kind routable. Per-kind lifecycle options are
// applied after the router-wide ones for every instance of this kind.
func (r *SingleHostRouter) RegisterKind(kind entity.Kind, options ...lifecycle.Option) error {
	if kind == nil {
		return lifecycle.ErrNilKind
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entityType := kind.EntityType()
	if _, exists := r.kinds[entityType]; exists {
		return fmt.Errorf("%w: %s", ErrKindAlreadyRegistered, entityType)
	}

	r.kinds[entityType] = registeredKind{kind: kind, options: options}

	return nil
}

// Execute delivers an entity-kind-specific command, creating the controller
// instance on first delivery.
func (r *SingleHostRouter) Execute(ctx context.Context, entityType string, entityID string, command entity.Command) entity.Response {
	inst, err := r.acquire(ctx, entityType, entityID)
	if err != nil {
		return entity.FailedResponse(err)
	}
	defer inst.inflight.Done()

	return inst.controller.Execute(ctx, command)
}

// GetState answers the deletion-respecting state query for an entity.
func (r *SingleHostRouter) GetState(ctx context.Context, entityType string, entityID string) entity.Response {
	inst, err := r.acquire(ctx, entityType, entityID)
	if err != nil {
		return entity.FailedResponse(err)
	}
	defer inst.inflight.Done()

	return inst.controller.GetState(ctx)
}

// GetStateIgnoringDeletion answers the state query including deleted entities.
func (r *SingleHostRouter) GetStateIgnoringDeletion(ctx context.Context, entityType string, entityID string) entity.Response {
	inst, err := r.acquire(ctx, entityType, entityID)
	if err != nil {
		return entity.FailedResponse(err)
	}
	defer inst.inflight.Done()

	return inst.controller.GetStateIgnoringDeletion(ctx)
}

// MarkAsDeleted delivers a deletion request for an entity.
func (r *SingleHostRouter) MarkAsDeleted(ctx context.Context, entityType string, entityID string) entity.Response {
	inst, err := r.acquire(ctx, entityType, entityID)
	if err != nil {
		return entity.FailedResponse(err)
	}
	defer inst.inflight.Done()

	return inst.controller.MarkAsDeleted(ctx)
}

// RequestPassivate implements lifecycle.PassivationHost. The instance is
// removed from the routing table immediately, so future deliveries create a
// fresh instance; the stop acknowledgment is sent once every command already
// delivered to the old reference has drained.
func (r *SingleHostRouter) RequestPassivate(entityType string, entityID string) {
	key := instanceKey{entityType: entityType, entityID: entityID}

	r.mu.Lock()
	inst, exists := r.instances[key]
	if exists {
		delete(r.instances, key)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	r.passivations.Add(1)
	go func() {
		defer r.passivations.Done()
		inst.inflight.Wait()
		inst.controller.ConfirmStop()
	}()
}

// Shutdown evicts every live instance, drains in-flight commands, and waits
// for the controllers to terminate or the context to expire.
func (r *SingleHostRouter) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shutDown = true
	evicted := make([]*instance, 0, len(r.instances))
	for key, inst := range r.instances {
		evicted = append(evicted, inst)
		delete(r.instances, key)
	}
	r.mu.Unlock()

	for _, inst := range evicted {
		inst.inflight.Wait()
		inst.controller.ConfirmStop()

		select {
		case <-inst.controller.Stopped():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.passivations.Wait()

	return nil
}

// acquire returns the live instance for the key, creating and starting one on
// first delivery. The in-flight count is incremented under the routing table
// lock, so a concurrent passivation drains this delivery before stopping the
// instance. Recovery of a new instance blocks only deliveries for this entity
// identifier, never other entities.
func (r *SingleHostRouter) acquire(ctx context.Context, entityType string, entityID string) (*instance, error) {
	key := instanceKey{entityType: entityType, entityID: entityID}

	r.mu.Lock()

	if r.shutDown {
		r.mu.Unlock()
		return nil, ErrRouterShutDown
	}

	if inst, exists := r.instances[key]; exists {
		inst.inflight.Add(1)
		r.mu.Unlock()

		<-inst.ready
		if inst.startErr != nil {
			inst.inflight.Done()
			return nil, inst.startErr
		}

		return inst, nil
	}

	registered, known := r.kinds[entityType]
	if !known {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}

	options := make([]lifecycle.Option, 0, len(r.defaultOptions)+len(registered.options)+1)
	options = append(options, r.defaultOptions...)
	options = append(options, registered.options...)
	options = append(options, lifecycle.WithPassivationHost(r))

	controller, err := lifecycle.NewController(registered.kind, entityID, r.log, options...)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	inst := &instance{
		controller: controller,
		ready:      make(chan struct{}),
	}
	inst.inflight.Add(1)
	r.instances[key] = inst
	r.mu.Unlock()

	// Recovery runs outside the lock: it blocks only this entity's deliveries.
	inst.startErr = controller.Start(ctx)
	close(inst.ready)

	if inst.startErr != nil {
		r.mu.Lock()
		if current, exists := r.instances[key]; exists && current == inst {
			delete(r.instances, key)
		}
		r.mu.Unlock()

		inst.inflight.Done()

		return nil, inst.startErr
	}

	return inst, nil
}
