package lifecycle

import (
	"context"
	"math"
	"time"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

const (
	// ControllerCommandDurationMetric tracks command processing duration per command type.
	ControllerCommandDurationMetric = "controller_command_duration_seconds"
	// ControllerCommandsMetric tracks total commands processed.
	ControllerCommandsMetric = "controller_commands_total"
	// ControllerRecoveryDurationMetric tracks recovery replay duration.
	ControllerRecoveryDurationMetric = "controller_recovery_duration_seconds"
	// ControllerSnapshotSavesMetric tracks snapshot save attempts.
	ControllerSnapshotSavesMetric = "controller_snapshot_saves_total"
	// ControllerPassivationsMetric tracks passivation requests sent to the host.
	ControllerPassivationsMetric = "controller_passivation_requests_total"
	// ControllerConsistencyWaitDurationMetric tracks the time spent waiting for projection readiness.
	ControllerConsistencyWaitDurationMetric = "controller_consistency_wait_duration_seconds"

	// StatusAccepted indicates a command passed the admissibility gate and was processed.
	StatusAccepted = "accepted"
	// StatusRejectedByPhase indicates a command was answered as a no-op because
	// of the entity's lifecycle phase. This is a normal response, not a failure.
	StatusRejectedByPhase = "rejected_by_phase"
	// StatusFailed indicates command processing failed.
	StatusFailed = "failed"
	// StatusSuccess indicates an operation completed.
	StatusSuccess = "success"
	// StatusError indicates an operation failed.
	StatusError = "error"

	logMsgRecoveryCompleted        = "recovery completed"
	logMsgRecoveryFailed           = "recovery failed"
	logMsgStaleSnapshotDropped     = "stale snapshot could not be decoded, dropped for full replay"
	logMsgCommandRejectedByPhase   = "command rejected by lifecycle phase"
	logMsgEventAppendFailed        = "event append failed"
	logMsgSnapshotSaved            = "snapshot saved"
	logMsgSnapshotSaveFailed       = "snapshot save failed"
	logMsgSnapshotDeleteFailed     = "snapshot delete failed"
	logMsgSnapshotMarshalFailed    = "snapshot state marshaling failed"
	logMsgPassivationRequested     = "passivation requested"
	logMsgControllerStopped        = "controller stopped"
	logMsgConsistencyWaitTimedOut  = "consistency wait timed out"
	logMsgNoWaiterForToken         = "event carries consistency token but no projection waiter is configured"
	logMsgExpectReadyFailed        = "registering projection readiness wait failed"
	logAttrEntityType              = "entity_type"
	logAttrEntityID                = "entity_id"
	logAttrCommandType             = "command_type"
	logAttrPhase                   = "phase"
	logAttrPosition                = "position"
	logAttrEventCount              = "event_count"
	logAttrDurationMS              = "duration_ms"
	logAttrError                   = "error"
	logAttrConsistencyToken        = "consistency_token"
	spanNameCommand                = "controller.command"
	spanNameRecovery               = "controller.recovery"
	labelEntityType                = "entity_type"
	labelCommandType               = "command_type"
	labelStatus                    = "status"
)

// logDebug, logInfo, logWarn and logError prefer the contextual logger when
// one is configured, falling back to the basic logger.

func (c *Controller) logDebug(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Controller) logInfo(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logWarn(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Controller) logError(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}

func (c *Controller) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventlog.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, duration, labels)
}

func (c *Controller) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventlog.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

func (c *Controller) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventlog.SpanContext) {
	if c.tracingCollector == nil {
		return ctx, nil
	}

	return c.tracingCollector.StartSpan(ctx, name, attrs)
}

func (c *Controller) finishSpan(span eventlog.SpanContext, status string) {
	if c.tracingCollector == nil || span == nil {
		return
	}

	c.tracingCollector.FinishSpan(span, status, nil)
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
