// Package demo contains the moving parts of the demo application: a polling
// email projector that materializes a lookup table from profile events and
// publishes projection readiness signals.
package demo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
	"github.com/entitykit/entity-lifecycle-go/example/profile"
	"github.com/entitykit/entity-lifecycle-go/lifecycle"
	"github.com/entitykit/entity-lifecycle-go/projection"
)

const defaultPollInterval = 50 * time.Millisecond

// EmailProjector maintains an email-by-profile lookup table from profile
// events and publishes a readiness signal for every event that carries a
// consistency token. It polls the event log, which keeps the demo free of
// any log-tailing infrastructure.
type EmailProjector struct {
	log          lifecycle.EventLog
	kind         profile.Kind
	publisher    projection.ReadinessPublisher
	logger       *slog.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	emails    map[string]string
	positions map[string]eventlog.Position
}

// NewEmailProjector creates a projector over the given event log and readiness publisher.
func NewEmailProjector(
	log lifecycle.EventLog,
	kind profile.Kind,
	publisher projection.ReadinessPublisher,
	logger *slog.Logger,
) *EmailProjector {
	return &EmailProjector{
		log:          log,
		kind:         kind,
		publisher:    publisher,
		logger:       logger,
		pollInterval: defaultPollInterval,
		emails:       make(map[string]string),
		positions:    make(map[string]eventlog.Position),
	}
}

// EmailOf returns the projected email address for a profile, if any.
func (p *EmailProjector) EmailOf(profileID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	email, ok := p.emails[profileID]
	return email, ok
}

// Watch polls the entity's stream until the context is canceled, applying new
// events to the lookup table and publishing readiness for token-carrying events.
func (p *EmailProjector) Watch(ctx context.Context, profileID string) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.catchUp(ctx, profileID)
		}
	}
}

func (p *EmailProjector) catchUp(ctx context.Context, profileID string) {
	p.mu.Lock()
	after := p.positions[profileID]
	p.mu.Unlock()

	tail, _, err := p.log.ReadFrom(ctx, p.kind.EntityType(), profileID, after)
	if err != nil {
		p.logger.Warn("projector read failed", "profile_id", profileID, "error", err)
		return
	}

	for _, storable := range tail {
		after++
		p.apply(profileID, storable, after)

		if storable.HasConsistencyToken() {
			if publishErr := p.publisher.PublishReady(ctx, p.kind.EntityType(), profileID, storable.ConsistencyToken); publishErr != nil {
				p.logger.Warn("projector readiness publish failed", "profile_id", profileID, "error", publishErr)
			}
		}
	}
}

func (p *EmailProjector) apply(profileID string, storable eventlog.StorableEvent, position eventlog.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.positions[profileID] = position

	event, err := p.kind.UnmarshalEvent(storable.EventType, storable.PayloadJSON)
	if err != nil {
		p.logger.Warn("projector event decode failed", "event_type", storable.EventType, "error", err)
		return
	}

	switch actualEvent := event.(type) {
	case profile.ProfileRegistered:
		p.emails[profileID] = actualEvent.EmailAddress
	case profile.ProfileEmailChanged:
		p.emails[profileID] = actualEvent.EmailAddress
	case profile.ProfileDeleted:
		delete(p.emails, profileID)
	}
}
