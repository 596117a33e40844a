package eventlog

import (
	"errors"
)

var (
	// ErrNilDatabaseConnection is returned when a nil database connection is supplied to an engine factory.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyEventsTableName is returned when an empty events table name is supplied.
	ErrEmptyEventsTableName = errors.New("empty events table name supplied")

	// ErrEmptySnapshotsTableName is returned when an empty snapshots table name is supplied.
	ErrEmptySnapshotsTableName = errors.New("empty snapshots table name supplied")

	// ErrConcurrencyConflict is returned when an append with an expected head position
	// affected no rows because another writer advanced the stream in the meantime.
	ErrConcurrencyConflict = errors.New("concurrency error, no rows were affected")

	// ErrReadingEventsFailed is returned when reading an entity's event stream fails.
	ErrReadingEventsFailed = errors.New("reading events failed")

	// ErrAppendingEventFailed is returned when appending events to an entity's stream fails.
	ErrAppendingEventFailed = errors.New("appending event failed")

	// ErrBuildingQueryFailed is returned when SQL query construction fails.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrScanningDBRowFailed is returned when scanning a database row fails.
	ErrScanningDBRowFailed = errors.New("scanning database row failed")

	// ErrGettingRowsAffectedFailed is returned when the rows-affected count cannot be determined.
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
)

// Position is a type alias for uint, representing a position in an entity's
// event stream. Positions are contiguous per entity, starting at 1; the zero
// value denotes the beginning of the stream (no events).
type Position = uint
