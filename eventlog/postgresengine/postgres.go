package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
	"github.com/entitykit/entity-lifecycle-go/eventlog/postgresengine/internal/adapters"
)

const (
	defaultEventsTableName    = "events"
	defaultSnapshotsTableName = "snapshots"

	logMsgBuildSelectQueryFailed   = "failed to build select query"
	logMsgDBQueryFailed            = "database query execution failed"
	logMsgCloseRowsFailed          = "failed to close database rows"
	logMsgScanRowFailed            = "failed to scan database row"
	logMsgBuildStorableEventFailed = "failed to build storable event from database row"
	logMsgBuildInsertQueryFailed   = "failed to build insert query"
	logMsgBuildDeleteQueryFailed   = "failed to build delete query"
	logMsgDBExecFailed             = "database execution failed during event append"
	logMsgRowsAffectedFailed       = "failed to get rows affected count"
	logMsgReadCompleted            = "read completed"
	logMsgEventsAppended           = "events appended"
	logMsgConcurrencyConflict      = "concurrency conflict detected"
	logMsgSnapshotSaved            = "snapshot saved"
	logMsgSnapshotLoaded           = "snapshot loaded"
	logMsgSnapshotDeleted          = "snapshot deleted"
	logMsgSQLExecuted              = "executed sql for: "
	logMsgOperation                = "eventlog operation: "

	logAttrError            = "error"
	logAttrQuery            = "query"
	logAttrEntityType       = "entity_type"
	logAttrEntityID         = "entity_id"
	logAttrEventType        = "event_type"
	logAttrEventCount       = "event_count"
	logAttrDurationMS       = "duration_ms"
	logAttrExpectedEvents   = "expected_events"
	logAttrRowsAffected     = "rows_affected"
	logAttrExpectedPosition = "expected_position"
	logAttrPosition         = "position"

	logActionRead           = "read"
	logActionAppend         = "append"
	logActionSaveSnapshot   = "save snapshot"
	logActionLoadSnapshot   = "load snapshot"
	logActionDeleteSnapshot = "delete snapshot"

	colEntityType       = "entity_type"
	colEntityID         = "entity_id"
	colPosition         = "position"
	colEventType        = "event_type"
	colOccurredAt       = "occurred_at"
	colConsistencyToken = "consistency_token"
	colPayload          = "payload"
	colMetadata         = "metadata"
	colData             = "data"
	colCreatedAt        = "created_at"

	cteContext      = "context"
	cteVals         = "vals"
	dialectPostgres = "postgres"
	aliasMaxPos     = "max_pos"
	colOrdinal      = "ordinal"
	castText        = "?::text"
	castTimestamp   = "?::timestamp with time zone"
	castJsonb       = "?::jsonb"
	castBigint      = "?::bigint"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
	queryDuration     = time.Duration
)

// EventLog is the PostgreSQL-backed event log and snapshot store.
// It leverages a database adapter and supports customizable logging,
// metrics, tracing, and table configuration.
type EventLog struct {
	db                 adapters.DBAdapter
	eventsTableName    string
	snapshotsTableName string
	logger             eventlog.Logger
	metricsCollector   eventlog.MetricsCollector
	tracingCollector   eventlog.TracingCollector
	contextualLogger   eventlog.ContextualLogger
}

type eventResultRow struct {
	eventType        string
	occurredAt       time.Time
	consistencyToken sql.NullString
	payload          []byte
	metadata         []byte
	position         eventlog.Position
}

// NewEventLogFromPGXPool creates a new EventLog using a pgx pool with optional configuration.
func NewEventLogFromPGXPool(db *pgxpool.Pool, options ...Option) (EventLog, error) {
	if db == nil {
		return EventLog{}, eventlog.ErrNilDatabaseConnection
	}

	return buildEventLog(adapters.NewPGXAdapter(db), options...)
}

// NewEventLogFromPGXPoolWithReplica creates a new EventLog using a primary pgx pool
// for appends and a replica pool for reads, with optional configuration.
func NewEventLogFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (EventLog, error) {
	if db == nil || replica == nil {
		return EventLog{}, eventlog.ErrNilDatabaseConnection
	}

	return buildEventLog(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewEventLogFromSQLDB creates a new EventLog using a sql.DB with optional configuration.
func NewEventLogFromSQLDB(db *sql.DB, options ...Option) (EventLog, error) {
	if db == nil {
		return EventLog{}, eventlog.ErrNilDatabaseConnection
	}

	return buildEventLog(adapters.NewSQLAdapter(db), options...)
}

// NewEventLogFromSQLX creates a new EventLog using a sqlx.DB with optional configuration.
func NewEventLogFromSQLX(db *sqlx.DB, options ...Option) (EventLog, error) {
	if db == nil {
		return EventLog{}, eventlog.ErrNilDatabaseConnection
	}

	return buildEventLog(adapters.NewSQLXAdapter(db), options...)
}

func buildEventLog(adapter adapters.DBAdapter, options ...Option) (EventLog, error) {
	el := EventLog{
		db:                 adapter,
		eventsTableName:    defaultEventsTableName,
		snapshotsTableName: defaultSnapshotsTableName,
	}

	for _, option := range options {
		if err := option(&el); err != nil {
			return EventLog{}, err
		}
	}

	return el, nil
}

// ReadFrom retrieves the entity's events after the given position in strict
// stream order and returns them together with the current head position of
// the stream (zero if the stream is empty).
func (el EventLog) ReadFrom(
	ctx context.Context,
	entityType string,
	entityID string,
	afterPosition eventlog.Position,
) (eventlog.StorableEvents, eventlog.Position, error) {

	var empty eventlog.StorableEvents

	ctx, span := el.startReadSpan(ctx, entityType, entityID)

	sqlQuery, buildQueryErr := el.buildSelectQuery(entityType, entityID, afterPosition)
	if buildQueryErr != nil {
		el.logError(ctx, logMsgBuildSelectQueryFailed, logAttrError, buildQueryErr.Error())
		el.recordErrorMetrics(ctx, operationRead, errorTypeQueryBuildFailed)
		el.finishSpanError(span, errorTypeQueryBuildFailed)

		return empty, 0, buildQueryErr
	}

	rows, duration, queryErr := el.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		el.recordErrorMetrics(ctx, operationRead, errorTypeQueryFailed)
		el.finishSpanError(span, errorTypeQueryFailed)

		return empty, 0, queryErr
	}
	defer el.closeRows(ctx, rows)

	eventStream, headPosition, scanErr := el.processEventRows(ctx, rows, entityType, entityID)
	if scanErr != nil {
		el.recordErrorMetrics(ctx, operationRead, errorTypeScanFailed)
		el.finishSpanError(span, errorTypeScanFailed)

		return empty, 0, scanErr
	}

	if len(eventStream) == 0 {
		var headErr error
		headPosition, headErr = el.queryHeadPosition(ctx, entityType, entityID)
		if headErr != nil {
			el.recordErrorMetrics(ctx, operationRead, errorTypeQueryFailed)
			el.finishSpanError(span, errorTypeQueryFailed)

			return empty, 0, headErr
		}
	}

	el.logOperation(ctx, logMsgReadCompleted,
		logAttrEntityType, entityType,
		logAttrEntityID, entityID,
		logAttrEventCount, len(eventStream),
		logAttrDurationMS, el.durationToMilliseconds(duration))

	el.recordDurationMetrics(ctx, metricReadDuration, duration, operationRead, statusSuccess)
	el.recordValueMetrics(ctx, metricEventsRead, float64(len(eventStream)), operationRead, statusSuccess)
	el.finishSpanSuccess(span, map[string]string{
		spanAttrEventCount:   fmt.Sprintf("%d", len(eventStream)),
		spanAttrHeadPosition: fmt.Sprintf("%d", headPosition),
	})

	return eventStream, headPosition, nil
}

// Append attempts to append one or multiple events onto the entity's stream,
// expecting the stream head to be at the given position. A head mismatch
// caused by a concurrent writer affects zero rows and returns
// eventlog.ErrConcurrencyConflict.
//
// The insert query to append multiple events atomically is heavier than the
// one built to append a single event. One command should typically produce
// one event; only supply multiple events if they must become durable at once.
func (el EventLog) Append(
	ctx context.Context,
	entityType string,
	entityID string,
	expectedHeadPosition eventlog.Position,
	event eventlog.StorableEvent,
	additionalEvents ...eventlog.StorableEvent,
) error {

	allEvents := eventlog.StorableEvents{event}
	allEvents = append(allEvents, additionalEvents...)

	ctx, span := el.startAppendSpan(ctx, entityType, entityID, expectedHeadPosition, len(allEvents))

	sqlQuery, buildQueryErr := el.buildAppendQuery(entityType, entityID, expectedHeadPosition, allEvents)
	if buildQueryErr != nil {
		el.logError(ctx, logMsgBuildInsertQueryFailed, logAttrError, buildQueryErr.Error(), logAttrEventCount, len(allEvents))
		el.recordErrorMetrics(ctx, operationAppend, errorTypeQueryBuildFailed)
		el.finishSpanError(span, errorTypeQueryBuildFailed)

		return buildQueryErr
	}

	rowsAffected, duration, execErr := el.executeAppendQuery(ctx, sqlQuery)
	if execErr != nil {
		errorType := errorTypeExecFailed
		if errors.Is(execErr, eventlog.ErrGettingRowsAffectedFailed) {
			errorType = errorTypeRowsAffectedFailed
		}
		el.recordErrorMetrics(ctx, operationAppend, errorType)
		el.finishSpanError(span, errorType)

		return execErr
	}

	if rowsAffected < int64(len(allEvents)) {
		el.logOperation(ctx, logMsgConcurrencyConflict,
			logAttrEntityType, entityType,
			logAttrEntityID, entityID,
			logAttrExpectedEvents, len(allEvents),
			logAttrRowsAffected, rowsAffected,
			logAttrExpectedPosition, expectedHeadPosition)

		el.recordConcurrencyConflictMetrics(ctx, operationAppend)
		el.finishSpanError(span, errorTypeConcurrencyConflict)

		return eventlog.ErrConcurrencyConflict
	}

	el.logOperation(ctx, logMsgEventsAppended,
		logAttrEntityType, entityType,
		logAttrEntityID, entityID,
		logAttrEventCount, len(allEvents),
		logAttrDurationMS, el.durationToMilliseconds(duration))

	el.recordDurationMetrics(ctx, metricAppendDuration, duration, operationAppend, statusSuccess)
	el.recordValueMetrics(ctx, metricEventsAppended, float64(len(allEvents)), operationAppend, statusSuccess)
	el.finishSpanSuccess(span, map[string]string{
		spanAttrRowsAffected: fmt.Sprintf("%d", rowsAffected),
		spanAttrDurationMS:   fmt.Sprintf("%.2f", el.durationToMilliseconds(duration)),
	})

	return nil
}

/*** Query execution helpers ***/

func (el EventLog) executeQuery(ctx context.Context, sqlQuery string) (
	adapters.DBRows,
	time.Duration,
	error,
) {

	start := time.Now()
	rows, queryErr := el.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	el.logQueryWithDuration(ctx, sqlQuery, logActionRead, duration)

	if queryErr != nil {
		el.logError(ctx, logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		return nil, duration, errors.Join(eventlog.ErrReadingEventsFailed, queryErr)
	}

	return rows, duration, nil
}

func (el EventLog) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		el.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (el EventLog) processEventRows(ctx context.Context, rows adapters.DBRows, entityType string, entityID string) (
	eventlog.StorableEvents,
	eventlog.Position,
	error,
) {

	var empty eventlog.StorableEvents
	result := eventResultRow{}
	eventStream := make(eventlog.StorableEvents, 0)
	headPosition := eventlog.Position(0)

	for rows.Next() {
		rowScanErr := rows.Scan(
			&result.eventType,
			&result.occurredAt,
			&result.consistencyToken,
			&result.payload,
			&result.metadata,
			&result.position,
		)
		if rowScanErr != nil {
			el.logError(ctx, logMsgScanRowFailed, logAttrError, rowScanErr.Error())
			return empty, 0, errors.Join(eventlog.ErrScanningDBRowFailed, rowScanErr)
		}

		event, buildErr := el.storableEventFromRow(result, entityType, entityID)
		if buildErr != nil {
			el.logError(ctx, logMsgBuildStorableEventFailed, logAttrError, buildErr.Error(), logAttrEventType, result.eventType)
			return empty, 0, buildErr
		}

		eventStream = append(eventStream, event)
		headPosition = result.position
	}

	return eventStream, headPosition, nil
}

func (el EventLog) storableEventFromRow(row eventResultRow, entityType string, entityID string) (eventlog.StorableEvent, error) {
	event := eventlog.StorableEvent{
		EventType:    row.eventType,
		EntityType:   entityType,
		EntityID:     entityID,
		OccurredAt:   row.occurredAt,
		PayloadJSON:  row.payload,
		MetadataJSON: row.metadata,
	}

	if row.consistencyToken.Valid {
		token, parseErr := uuid.Parse(row.consistencyToken.String)
		if parseErr != nil {
			return eventlog.StorableEvent{}, errors.Join(eventlog.ErrScanningDBRowFailed, parseErr)
		}

		event.ConsistencyToken = token
	}

	return event, nil
}

func (el EventLog) queryHeadPosition(ctx context.Context, entityType string, entityID string) (eventlog.Position, error) {
	sqlQuery, buildErr := el.buildHeadPositionQuery(entityType, entityID)
	if buildErr != nil {
		el.logError(ctx, logMsgBuildSelectQueryFailed, logAttrError, buildErr.Error())
		return 0, buildErr
	}

	rows, _, queryErr := el.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer el.closeRows(ctx, rows)

	headPosition := eventlog.Position(0)

	if rows.Next() {
		if scanErr := rows.Scan(&headPosition); scanErr != nil {
			el.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return 0, errors.Join(eventlog.ErrScanningDBRowFailed, scanErr)
		}
	}

	return headPosition, nil
}

func (el EventLog) executeAppendQuery(ctx context.Context, sqlQuery string) (
	rowsAffectedInt64,
	queryDuration,
	error,
) {

	start := time.Now()
	tag, execErr := el.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	el.logQueryWithDuration(ctx, sqlQuery, logActionAppend, duration)

	if execErr != nil {
		el.logError(ctx, logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		return 0, duration, errors.Join(eventlog.ErrAppendingEventFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := tag.RowsAffected()
	if rowsAffectedErr != nil {
		el.logError(ctx, logMsgRowsAffectedFailed, logAttrError, rowsAffectedErr.Error())
		return 0, duration, errors.Join(eventlog.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, duration, nil
}

/*** SQL building ***/

func (el EventLog) entityPredicate(entityType string, entityID string) goqu.Expression {
	return goqu.And(
		goqu.Ex{colEntityType: entityType},
		goqu.Ex{colEntityID: entityID},
	)
}

func (el EventLog) buildSelectQuery(entityType string, entityID string, afterPosition eventlog.Position) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(el.eventsTableName).
		Select(colEventType, colOccurredAt, colConsistencyToken, colPayload, colMetadata, colPosition).
		Where(
			el.entityPredicate(entityType, entityID),
			goqu.C(colPosition).Gt(afterPosition),
		).
		Order(goqu.I(colPosition).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (el EventLog) buildHeadPositionQuery(entityType string, entityID string) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(el.eventsTableName).
		Select(goqu.COALESCE(goqu.MAX(colPosition), 0)).
		Where(el.entityPredicate(entityType, entityID))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (el EventLog) buildAppendQuery(
	entityType string,
	entityID string,
	expectedHeadPosition eventlog.Position,
	allEvents eventlog.StorableEvents,
) (sqlQueryString, error) {

	if len(allEvents) == 1 {
		return el.buildInsertQueryForSingleEvent(entityType, entityID, expectedHeadPosition, allEvents[0])
	}

	return el.buildInsertQueryForMultipleEvents(entityType, entityID, expectedHeadPosition, allEvents)
}

func consistencyTokenValue(event eventlog.StorableEvent) any {
	if !event.HasConsistencyToken() {
		return nil
	}

	return event.ConsistencyToken.String()
}

func (el EventLog) buildInsertQueryForSingleEvent(
	entityType string,
	entityID string,
	expectedHeadPosition eventlog.Position,
	event eventlog.StorableEvent,
) (sqlQueryString, error) {

	builder := goqu.Dialect(dialectPostgres)

	// Define the subquery for the CTE resolving the stream head
	cteStmt := builder.
		From(el.eventsTableName).
		Select(goqu.MAX(colPosition).As(aliasMaxPos)).
		Where(el.entityPredicate(entityType, entityID))

	// Define the SELECT for the INSERT
	selectStmt := builder.
		From(cteContext).
		Select(
			goqu.V(entityType),
			goqu.V(entityID),
			goqu.L("COALESCE(max_pos, 0) + 1"),
			goqu.V(event.EventType),
			goqu.V(event.OccurredAt),
			goqu.V(consistencyTokenValue(event)),
			goqu.V(event.PayloadJSON),
			goqu.V(event.MetadataJSON),
		).
		Where(goqu.COALESCE(goqu.C(aliasMaxPos), 0).Eq(goqu.V(expectedHeadPosition)))

	// Finalize the full INSERT query
	insertStmt := builder.
		Insert(el.eventsTableName).
		Cols(colEntityType, colEntityID, colPosition, colEventType, colOccurredAt, colConsistencyToken, colPayload, colMetadata).
		FromQuery(selectStmt).
		With(cteContext, cteStmt)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (el EventLog) buildInsertQueryForMultipleEvents(
	entityType string,
	entityID string,
	expectedHeadPosition eventlog.Position,
	events eventlog.StorableEvents,
) (sqlQueryString, error) {

	builder := goqu.Dialect(dialectPostgres)

	// Define the subquery for the CTE resolving the stream head
	cteStmt := builder.
		From(el.eventsTableName).
		Select(goqu.MAX(colPosition).As(aliasMaxPos)).
		Where(el.entityPredicate(entityType, entityID))

	// Create individual SELECT statements for each event, carrying the
	// ordinal used to compute contiguous positions after the stream head
	unionStatements := make([]*goqu.SelectDataset, len(events))
	for i, event := range events {
		unionStatements[i] = builder.
			Select(
				goqu.L(castBigint, i+1).As(colOrdinal),
				goqu.L(castText, event.EventType).As(colEventType),
				goqu.L(castTimestamp, event.OccurredAt).As(colOccurredAt),
				goqu.L(castText, consistencyTokenValue(event)).As(colConsistencyToken),
				goqu.L(castJsonb, event.PayloadJSON).As(colPayload),
				goqu.L(castJsonb, event.MetadataJSON).As(colMetadata),
			)
	}

	// Combine all SELECT statements with UNION ALL
	valuesStmt := unionStatements[0]
	for i := 1; i < len(unionStatements); i++ {
		valuesStmt = valuesStmt.UnionAll(unionStatements[i])
	}

	// Finalize the full INSERT query
	insertStmt := builder.
		Insert(el.eventsTableName).
		Cols(colEntityType, colEntityID, colPosition, colEventType, colOccurredAt, colConsistencyToken, colPayload, colMetadata).
		With(cteContext, cteStmt).
		With(cteVals, valuesStmt).
		FromQuery(
			builder.From(cteContext, cteVals).
				Select(
					goqu.V(entityType),
					goqu.V(entityID),
					goqu.L("COALESCE(max_pos, 0) + vals.ordinal"),
					goqu.I(cteVals+"."+colEventType),
					goqu.I(cteVals+"."+colOccurredAt),
					goqu.I(cteVals+"."+colConsistencyToken),
					goqu.I(cteVals+"."+colPayload),
					goqu.I(cteVals+"."+colMetadata),
				).
				Where(goqu.COALESCE(goqu.C(aliasMaxPos), 0).Eq(goqu.V(expectedHeadPosition))),
		)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

/*** Logging helpers ***/

func (el EventLog) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	el.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, el.durationToMilliseconds(duration), logAttrQuery, sqlQuery)
}

func (el EventLog) logOperation(ctx context.Context, action string, args ...any) {
	el.logInfo(ctx, logMsgOperation+action, args...)
}

func (el EventLog) logDebug(ctx context.Context, msg string, args ...any) {
	if el.contextualLogger != nil {
		el.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}
	if el.logger != nil {
		el.logger.Debug(msg, args...)
	}
}

func (el EventLog) logInfo(ctx context.Context, msg string, args ...any) {
	if el.contextualLogger != nil {
		el.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}
	if el.logger != nil {
		el.logger.Info(msg, args...)
	}
}

func (el EventLog) logWarn(ctx context.Context, msg string, args ...any) {
	if el.contextualLogger != nil {
		el.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}
	if el.logger != nil {
		el.logger.Warn(msg, args...)
	}
}

func (el EventLog) logError(ctx context.Context, msg string, args ...any) {
	if el.contextualLogger != nil {
		el.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}
	if el.logger != nil {
		el.logger.Error(msg, args...)
	}
}

func (el EventLog) durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
