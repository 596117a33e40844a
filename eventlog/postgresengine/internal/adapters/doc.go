// Package adapters wraps the supported database access libraries (pgx pool,
// database/sql, sqlx) behind one narrow interface, so the Postgres event log
// engine stays agnostic of which one the caller wires in.
package adapters
