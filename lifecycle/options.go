package lifecycle

import (
	"errors"
	"time"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

const (
	defaultConsistencyWaitTimeout = 5 * time.Second
	defaultMailboxCapacity        = 64

	// snapshotSaveTimeout bounds detached snapshot save operations so a hung
	// store cannot leak goroutines.
	snapshotSaveTimeout = 60 * time.Second
)

var (
	// ErrInvalidIdleWindow is returned when a negative idle window is configured.
	ErrInvalidIdleWindow = errors.New("idle window must not be negative")

	// ErrInvalidSnapshotThreshold is returned when a negative snapshot threshold is configured.
	ErrInvalidSnapshotThreshold = errors.New("snapshot threshold must not be negative")

	// ErrInvalidConsistencyWaitTimeout is returned when a non-positive consistency wait timeout is configured.
	ErrInvalidConsistencyWaitTimeout = errors.New("consistency wait timeout must be positive")
)

// Option defines a functional option for configuring a Controller.
type Option func(*Controller) error

// WithIdleWindow sets the idle window after which the controller requests
// passivation from its host. Zero (the default) disables idle passivation.
func WithIdleWindow(window time.Duration) Option {
	return func(c *Controller) error {
		if window < 0 {
			return ErrInvalidIdleWindow
		}

		c.idleWindow = window

		return nil
	}
}

// WithSnapshotThreshold overrides the entity kind's snapshot compaction
// threshold. Zero disables snapshot compaction for this instance.
func WithSnapshotThreshold(threshold int) Option {
	return func(c *Controller) error {
		if threshold < 0 {
			return ErrInvalidSnapshotThreshold
		}

		c.snapshotThreshold = threshold
		c.thresholdOverridden = true

		return nil
	}
}

// WithConsistencyWaitTimeout bounds the wait for projection readiness when a
// persisted event carries a consistency token. The default is 5 seconds.
func WithConsistencyWaitTimeout(timeout time.Duration) Option {
	return func(c *Controller) error {
		if timeout <= 0 {
			return ErrInvalidConsistencyWaitTimeout
		}

		c.consistencyWaitTimeout = timeout

		return nil
	}
}

// WithProjectionWaiter sets the projection-readiness signal consumer.
// Without one, events carrying a consistency token are answered eventually
// consistent and a warning is logged.
func WithProjectionWaiter(waiter ProjectionWaiter) Option {
	return func(c *Controller) error {
		c.waiter = waiter
		return nil
	}
}

// WithPassivationHost sets the routing layer host to signal on idle expiry.
// Without one, the controller terminates itself when the idle window expires.
func WithPassivationHost(host PassivationHost) Option {
	return func(c *Controller) error {
		c.host = host
		return nil
	}
}

// WithLogger sets the logger for the Controller.
func WithLogger(logger eventlog.Logger) Option {
	return func(c *Controller) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Controller.
// When both a contextual and a basic logger are configured, the contextual
// logger is preferred for operations that carry a context.
func WithContextualLogger(logger eventlog.ContextualLogger) Option {
	return func(c *Controller) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Controller.
func WithMetrics(collector eventlog.MetricsCollector) Option {
	return func(c *Controller) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Controller.
func WithTracing(collector eventlog.TracingCollector) Option {
	return func(c *Controller) error {
		c.tracingCollector = collector
		return nil
	}
}
