// Package postgresengine implements the event log and snapshot store
// contract on PostgreSQL.
//
// Events live in one table with per-entity streams addressed by
// (entity_type, entity_id) and contiguous positions starting at 1; snapshots
// live in a second table holding at most one row per entity. The expected
// schema:
//
//	CREATE TABLE events (
//	    entity_type       TEXT        NOT NULL,
//	    entity_id         TEXT        NOT NULL,
//	    position          BIGINT      NOT NULL,
//	    event_type        TEXT        NOT NULL,
//	    occurred_at       TIMESTAMPTZ NOT NULL,
//	    consistency_token TEXT        NULL,
//	    payload           JSONB       NOT NULL,
//	    metadata          JSONB       NOT NULL,
//	    PRIMARY KEY (entity_type, entity_id, position)
//	);
//
//	CREATE TABLE snapshots (
//	    entity_type TEXT        NOT NULL,
//	    entity_id   TEXT        NOT NULL,
//	    position    BIGINT      NOT NULL,
//	    data        JSONB       NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (entity_type, entity_id)
//	);
//
// Append enforces optimistic concurrency with a CTE that resolves the
// current head position of the stream: the insert only selects rows while
// the head matches the expected position, so a lost race affects zero rows
// and surfaces as eventlog.ErrConcurrencyConflict.
//
// The engine can be constructed from a pgxpool.Pool (optionally with a read
// replica), a database/sql DB, or a sqlx.DB.
package postgresengine
