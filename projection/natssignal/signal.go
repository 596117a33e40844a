// Package natssignal implements the projection readiness signal over NATS
// subjects, for deployments where the projector and the entity hosts run in
// separate processes.
//
// Signals travel on `<prefix>.<entityType>.<entityID>.<token>` subjects
// (default prefix "projections.ready"). Subject tokens are sanitized, so
// entity identifiers containing NATS-reserved characters are safe to use.
package natssignal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/entitykit/entity-lifecycle-go/projection"
)

const defaultSubjectPrefix = "projections.ready"

// Signal is both sides of the readiness signal on one NATS connection.
// Controllers use the ReadinessWaiter side, projectors the ReadinessPublisher
// side; a process may use both.
type Signal struct {
	conn      *nats.Conn
	ownedConn bool
	prefix    string
}

// Option defines a functional option for configuring a Signal.
type Option func(*Signal) error

// WithSubjectPrefix overrides the subject prefix for readiness signals.
func WithSubjectPrefix(prefix string) Option {
	return func(s *Signal) error {
		if prefix == "" {
			return fmt.Errorf("subject prefix must not be empty")
		}

		s.prefix = prefix

		return nil
	}
}

// Connect dials NATS with automatic reconnection and returns a Signal owning
// the connection. Close releases it.
func Connect(url string, options ...Option) (*Signal, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	signal, err := NewSignal(conn, options...)
	if err != nil {
		conn.Close()
		return nil, err
	}

	signal.ownedConn = true

	return signal, nil
}

// NewSignal wraps an existing NATS connection. The caller keeps ownership of
// the connection; Close does not release it.
func NewSignal(conn *nats.Conn, options ...Option) (*Signal, error) {
	signal := &Signal{
		conn:   conn,
		prefix: defaultSubjectPrefix,
	}

	for _, option := range options {
		if err := option(signal); err != nil {
			return nil, err
		}
	}

	return signal, nil
}

// Close releases the NATS connection if this Signal owns it.
func (s *Signal) Close() {
	if s.ownedConn {
		s.conn.Close()
	}
}

// ExpectReady subscribes to the token's subject before the corresponding
// event is appended. Flush ensures the subscription is registered on the
// server before returning, so a signal published by a fast projector on
// another connection is never lost.
func (s *Signal) ExpectReady(entityType string, entityID string, token uuid.UUID) (projection.ReadyWait, error) {
	subject := s.subject(entityType, entityID, token)

	messages := make(chan *nats.Msg, 1)

	sub, err := s.conn.ChanSubscribe(subject, messages)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription for %s: %w", subject, err)
	}

	return &wait{sub: sub, messages: messages}, nil
}

// PublishReady signals that the token is now visible in the read store.
func (s *Signal) PublishReady(_ context.Context, entityType string, entityID string, token uuid.UUID) error {
	subject := s.subject(entityType, entityID, token)

	if err := s.conn.Publish(subject, []byte(token.String())); err != nil {
		return fmt.Errorf("publishing readiness on %s: %w", subject, err)
	}

	return s.conn.Flush()
}

func (s *Signal) subject(entityType string, entityID string, token uuid.UUID) string {
	return fmt.Sprintf("%s.%s.%s.%s",
		s.prefix,
		sanitizeSubjectToken(entityType),
		sanitizeSubjectToken(entityID),
		token.String(),
	)
}

// sanitizeSubjectToken replaces characters with special meaning in NATS
// subjects so arbitrary entity identifiers cannot break subject structure.
func sanitizeSubjectToken(s string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return replacer.Replace(s)
}

type wait struct {
	sub      *nats.Subscription
	messages chan *nats.Msg
}

func (w *wait) Await(ctx context.Context) error {
	select {
	case <-w.messages:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *wait) Cancel() {
	_ = w.sub.Unsubscribe()
}

// Interface guards.
var (
	_ projection.ReadinessWaiter    = (*Signal)(nil)
	_ projection.ReadinessPublisher = (*Signal)(nil)
)
