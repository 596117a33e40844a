package postgresengine

import (
	"strings"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

// Option defines a function which configures an EventLog instance and
// returns an error if the configuration is invalid.
type Option func(*EventLog) error

// WithEventsTableName returns an Option that sets a custom events table
// name for the EventLog.
func WithEventsTableName(tableName string) Option {
	return func(el *EventLog) error {
		if strings.TrimSpace(tableName) == "" {
			return eventlog.ErrEmptyEventsTableName
		}

		el.eventsTableName = tableName

		return nil
	}
}

// WithSnapshotsTableName returns an Option that sets a custom snapshots
// table name for the EventLog.
func WithSnapshotsTableName(tableName string) Option {
	return func(el *EventLog) error {
		if strings.TrimSpace(tableName) == "" {
			return eventlog.ErrEmptySnapshotsTableName
		}

		el.snapshotsTableName = tableName

		return nil
	}
}

// WithLogger returns an Option that attaches a basic logger to the EventLog.
func WithLogger(logger eventlog.Logger) Option {
	return func(el *EventLog) error {
		el.logger = logger

		return nil
	}
}

// WithContextualLogger returns an Option that attaches a context-aware logger
// to the EventLog. When both a basic and a contextual logger are configured,
// the contextual logger takes precedence.
func WithContextualLogger(logger eventlog.ContextualLogger) Option {
	return func(el *EventLog) error {
		el.contextualLogger = logger

		return nil
	}
}

// WithMetrics returns an Option that attaches a metrics collector to the EventLog.
func WithMetrics(collector eventlog.MetricsCollector) Option {
	return func(el *EventLog) error {
		el.metricsCollector = collector

		return nil
	}
}

// WithTracing returns an Option that attaches a tracing collector to the EventLog.
func WithTracing(collector eventlog.TracingCollector) Option {
	return func(el *EventLog) error {
		el.tracingCollector = collector

		return nil
	}
}
