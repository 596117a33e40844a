package postgresengine

import (
	"context"
	"fmt"
	"time"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

const (
	metricReadDuration         = "eventlog_read_duration_seconds"
	metricAppendDuration       = "eventlog_append_duration_seconds"
	metricEventsRead           = "eventlog_events_read_total"
	metricEventsAppended       = "eventlog_events_appended_total"
	metricConcurrencyConflicts = "eventlog_concurrency_conflicts_total"
	metricErrors               = "eventlog_errors_total"
	metricSnapshotOps          = "eventlog_snapshot_operations_total"

	spanNameRead   = "eventlog.read"
	spanNameAppend = "eventlog.append"

	operationRead     = "read"
	operationAppend   = "append"
	operationSnapshot = "snapshot"

	statusSuccess = "success"
	statusError   = "error"

	spanAttrOperation    = "operation"
	spanAttrEntityType   = "entity_type"
	spanAttrEntityID     = "entity_id"
	spanAttrEventCount   = "event_count"
	spanAttrExpectedPos  = "expected_position"
	spanAttrHeadPosition = "head_position"
	spanAttrRowsAffected = "rows_affected"
	spanAttrDurationMS   = "duration_ms"
	spanAttrErrorType    = "error_type"

	errorTypeQueryFailed         = "query_failed"
	errorTypeScanFailed          = "scan_failed"
	errorTypeExecFailed          = "exec_failed"
	errorTypeRowsAffectedFailed  = "rows_affected_failed"
	errorTypeQueryBuildFailed    = "query_build_failed"
	errorTypeConcurrencyConflict = "concurrency_conflict"
)

// recordDurationMetrics records a duration with context when the collector supports it.
func (el EventLog) recordDurationMetrics(
	ctx context.Context,
	metric string,
	duration time.Duration,
	operation string,
	status string,
) {
	if el.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          status,
	}

	if contextualCollector, ok := el.metricsCollector.(eventlog.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	el.metricsCollector.RecordDuration(metric, duration, labels)
}

// recordValueMetrics records a gauge-style value with context when the collector supports it.
func (el EventLog) recordValueMetrics(
	ctx context.Context,
	metric string,
	value float64,
	operation string,
	status string,
) {
	if el.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          status,
	}

	if contextualCollector, ok := el.metricsCollector.(eventlog.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
		return
	}

	el.metricsCollector.RecordValue(metric, value, labels)
}

// recordErrorMetrics increments the error counter for the given operation and error type.
func (el EventLog) recordErrorMetrics(ctx context.Context, operation string, errorType string) {
	if el.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          statusError,
		spanAttrErrorType: errorType,
	}

	if contextualCollector, ok := el.metricsCollector.(eventlog.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricErrors, labels)
		return
	}

	el.metricsCollector.IncrementCounter(metricErrors, labels)
}

// recordConcurrencyConflictMetrics increments the concurrency conflict counter.
func (el EventLog) recordConcurrencyConflictMetrics(ctx context.Context, operation string) {
	if el.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
	}

	if contextualCollector, ok := el.metricsCollector.(eventlog.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricConcurrencyConflicts, labels)
		return
	}

	el.metricsCollector.IncrementCounter(metricConcurrencyConflicts, labels)
}

// recordSnapshotMetrics increments the snapshot operation counter with an action label.
func (el EventLog) recordSnapshotMetrics(ctx context.Context, action string, status string) {
	if el.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operationSnapshot,
		"action":          action,
		"status":          status,
	}

	if contextualCollector, ok := el.metricsCollector.(eventlog.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricSnapshotOps, labels)
		return
	}

	el.metricsCollector.IncrementCounter(metricSnapshotOps, labels)
}

// startReadSpan begins a tracing span for a read operation if tracing is configured.
func (el EventLog) startReadSpan(ctx context.Context, entityType string, entityID string) (context.Context, eventlog.SpanContext) {
	if el.tracingCollector == nil {
		return ctx, nil
	}

	return el.tracingCollector.StartSpan(ctx, spanNameRead, map[string]string{
		spanAttrOperation:  operationRead,
		spanAttrEntityType: entityType,
		spanAttrEntityID:   entityID,
	})
}

// startAppendSpan begins a tracing span for an append operation if tracing is configured.
func (el EventLog) startAppendSpan(
	ctx context.Context,
	entityType string,
	entityID string,
	expectedHeadPosition eventlog.Position,
	eventCount int,
) (context.Context, eventlog.SpanContext) {
	if el.tracingCollector == nil {
		return ctx, nil
	}

	return el.tracingCollector.StartSpan(ctx, spanNameAppend, map[string]string{
		spanAttrOperation:   operationAppend,
		spanAttrEntityType:  entityType,
		spanAttrEntityID:    entityID,
		spanAttrExpectedPos: fmt.Sprintf("%d", expectedHeadPosition),
		spanAttrEventCount:  fmt.Sprintf("%d", eventCount),
	})
}

// finishSpanSuccess completes a span for a successful operation.
func (el EventLog) finishSpanSuccess(span eventlog.SpanContext, attrs map[string]string) {
	if el.tracingCollector == nil || span == nil {
		return
	}

	el.tracingCollector.FinishSpan(span, statusSuccess, attrs)
}

// finishSpanError completes a span for a failed operation with an error type attribute.
func (el EventLog) finishSpanError(span eventlog.SpanContext, errorType string) {
	if el.tracingCollector == nil || span == nil {
		return
	}

	el.tracingCollector.FinishSpan(span, statusError, map[string]string{spanAttrErrorType: errorType})
}
