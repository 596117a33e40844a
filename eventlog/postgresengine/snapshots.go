package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

const (
	snapshotActionSave   = "save"
	snapshotActionLoad   = "load"
	snapshotActionDelete = "delete"
)

// LatestSnapshot retrieves the stored snapshot for the entity, or nil if
// no snapshot exists. A corrupted row surfaces as ErrLoadingSnapshotFailed
// so callers can fall back to full replay.
func (el EventLog) LatestSnapshot(
	ctx context.Context,
	entityType string,
	entityID string,
) (*eventlog.Snapshot, error) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(el.snapshotsTableName).
		Select(colPosition, colData, colCreatedAt).
		Where(el.entityPredicate(entityType, entityID))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		el.logError(ctx, logMsgBuildSelectQueryFailed, logAttrError, toSQLErr.Error())
		return nil, errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	rows, queryErr := el.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	el.logQueryWithDuration(ctx, sqlQuery, logActionLoadSnapshot, duration)

	if queryErr != nil {
		el.logError(ctx, logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		el.recordSnapshotMetrics(ctx, snapshotActionLoad, statusError)

		return nil, errors.Join(eventlog.ErrLoadingSnapshotFailed, queryErr)
	}
	defer el.closeRows(ctx, rows)

	if !rows.Next() {
		return nil, nil
	}

	snapshot := eventlog.Snapshot{EntityType: entityType, EntityID: entityID}

	if scanErr := rows.Scan(&snapshot.Position, &snapshot.Data, &snapshot.CreatedAt); scanErr != nil {
		el.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
		el.recordSnapshotMetrics(ctx, snapshotActionLoad, statusError)

		return nil, errors.Join(eventlog.ErrLoadingSnapshotFailed, scanErr)
	}

	el.logOperation(ctx, logMsgSnapshotLoaded,
		logAttrEntityType, entityType,
		logAttrEntityID, entityID,
		logAttrPosition, snapshot.Position,
		logAttrDurationMS, el.durationToMilliseconds(duration))

	el.recordSnapshotMetrics(ctx, snapshotActionLoad, statusSuccess)

	return &snapshot, nil
}

// SaveSnapshot stores the snapshot for the entity, replacing any previous
// snapshot. Snapshots are an optimization only, so the last writer wins and
// no position comparison is made against an existing row.
func (el EventLog) SaveSnapshot(ctx context.Context, snapshot eventlog.Snapshot) error {
	if validateErr := snapshot.Validate(); validateErr != nil {
		return validateErr
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(el.snapshotsTableName).
		Cols(colEntityType, colEntityID, colPosition, colData, colCreatedAt).
		Vals(goqu.Vals{snapshot.EntityType, snapshot.EntityID, snapshot.Position, []byte(snapshot.Data), snapshot.CreatedAt}).
		OnConflict(goqu.DoUpdate(
			colEntityType+", "+colEntityID,
			goqu.Record{
				colPosition:  snapshot.Position,
				colData:      []byte(snapshot.Data),
				colCreatedAt: snapshot.CreatedAt,
			},
		))

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		el.logError(ctx, logMsgBuildInsertQueryFailed, logAttrError, toSQLErr.Error())
		return errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := el.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	el.logQueryWithDuration(ctx, sqlQuery, logActionSaveSnapshot, duration)

	if execErr != nil {
		el.logError(ctx, logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		el.recordSnapshotMetrics(ctx, snapshotActionSave, statusError)

		return errors.Join(eventlog.ErrSavingSnapshotFailed, execErr)
	}

	el.logOperation(ctx, logMsgSnapshotSaved,
		logAttrEntityType, snapshot.EntityType,
		logAttrEntityID, snapshot.EntityID,
		logAttrPosition, snapshot.Position,
		logAttrDurationMS, el.durationToMilliseconds(duration))

	el.recordSnapshotMetrics(ctx, snapshotActionSave, statusSuccess)

	return nil
}

// DeleteSnapshot removes the stored snapshot for the entity. Deleting a
// snapshot that does not exist is not an error.
func (el EventLog) DeleteSnapshot(ctx context.Context, entityType string, entityID string) error {
	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(el.snapshotsTableName).
		Where(el.entityPredicate(entityType, entityID))

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		el.logError(ctx, logMsgBuildDeleteQueryFailed, logAttrError, toSQLErr.Error())
		return errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := el.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	el.logQueryWithDuration(ctx, sqlQuery, logActionDeleteSnapshot, duration)

	if execErr != nil {
		el.logError(ctx, logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		el.recordSnapshotMetrics(ctx, snapshotActionDelete, statusError)

		return errors.Join(eventlog.ErrDeletingSnapshotFailed, execErr)
	}

	el.logOperation(ctx, logMsgSnapshotDeleted,
		logAttrEntityType, entityType,
		logAttrEntityID, entityID,
		logAttrDurationMS, el.durationToMilliseconds(duration))

	el.recordSnapshotMetrics(ctx, snapshotActionDelete, statusSuccess)

	return nil
}
