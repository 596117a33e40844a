// Package memoryengine provides an in-memory implementation of the event log
// and snapshot store contract, for tests and single-process use. It honors
// the same optimistic concurrency semantics as the Postgres engine and
// supports failure injection for append and snapshot operations.
package memoryengine

import (
	"context"
	"sync"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

type streamKey struct {
	entityType string
	entityID   string
}

// EventLog is an in-memory, mutex-protected event log with per-entity
// streams and latest-snapshot records.
type EventLog struct {
	mu                  sync.RWMutex
	streams             map[streamKey]eventlog.StorableEvents
	snapshots           map[streamKey]eventlog.Snapshot
	snapshotSaveCount   int
	appendFailure       error
	snapshotSaveFailure error
	snapshotLoadFailure error
}

// NewEventLog creates an empty in-memory event log.
func NewEventLog() *EventLog {
	return &EventLog{
		streams:   make(map[streamKey]eventlog.StorableEvents),
		snapshots: make(map[streamKey]eventlog.Snapshot),
	}
}

// Append appends events to the entity's stream, expecting the stream head to
// be at the given position. A mismatch returns eventlog.ErrConcurrencyConflict
// and appends nothing.
func (l *EventLog) Append(
	ctx context.Context,
	entityType string,
	entityID string,
	expectedHeadPosition eventlog.Position,
	event eventlog.StorableEvent,
	additionalEvents ...eventlog.StorableEvent,
) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.appendFailure != nil {
		return l.appendFailure
	}

	key := streamKey{entityType: entityType, entityID: entityID}
	stream := l.streams[key]

	if eventlog.Position(len(stream)) != expectedHeadPosition {
		return eventlog.ErrConcurrencyConflict
	}

	stream = append(stream, event)
	stream = append(stream, additionalEvents...)
	l.streams[key] = stream

	return nil
}

// ReadFrom returns the entity's events after the given position in stream
// order, together with the current head position of the stream.
func (l *EventLog) ReadFrom(
	ctx context.Context,
	entityType string,
	entityID string,
	afterPosition eventlog.Position,
) (eventlog.StorableEvents, eventlog.Position, error) {

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	key := streamKey{entityType: entityType, entityID: entityID}
	stream := l.streams[key]
	head := eventlog.Position(len(stream))

	if afterPosition >= head {
		return eventlog.StorableEvents{}, head, nil
	}

	tail := make(eventlog.StorableEvents, head-afterPosition)
	copy(tail, stream[afterPosition:])

	return tail, head, nil
}

// LatestSnapshot returns the latest snapshot for the entity, or nil if none exists.
func (l *EventLog) LatestSnapshot(ctx context.Context, entityType string, entityID string) (*eventlog.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snapshotLoadFailure != nil {
		return nil, l.snapshotLoadFailure
	}

	snapshot, exists := l.snapshots[streamKey{entityType: entityType, entityID: entityID}]
	if !exists {
		return nil, nil
	}

	return &snapshot, nil
}

// SaveSnapshot stores the snapshot, replacing any previous one for the same entity.
func (l *EventLog) SaveSnapshot(ctx context.Context, snapshot eventlog.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := snapshot.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.snapshotSaveFailure != nil {
		return l.snapshotSaveFailure
	}

	l.snapshots[streamKey{entityType: snapshot.EntityType, entityID: snapshot.EntityID}] = snapshot
	l.snapshotSaveCount++

	return nil
}

// DeleteSnapshot removes the entity's snapshot, if any.
func (l *EventLog) DeleteSnapshot(ctx context.Context, entityType string, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.snapshots, streamKey{entityType: entityType, entityID: entityID})

	return nil
}

/*** Test support ***/

// FailAppendsWith makes every subsequent Append return the given error.
// Passing nil restores normal operation.
func (l *EventLog) FailAppendsWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.appendFailure = err
}

// FailSnapshotSavesWith makes every subsequent SaveSnapshot return the given
// error. Passing nil restores normal operation.
func (l *EventLog) FailSnapshotSavesWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.snapshotSaveFailure = err
}

// FailSnapshotLoadsWith makes every subsequent LatestSnapshot return the
// given error. Passing nil restores normal operation.
func (l *EventLog) FailSnapshotLoadsWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.snapshotLoadFailure = err
}

// SnapshotSaveCount returns how many snapshot saves have succeeded.
func (l *EventLog) SnapshotSaveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.snapshotSaveCount
}

// HeadPosition returns the entity's current stream head position.
func (l *EventLog) HeadPosition(entityType string, entityID string) eventlog.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return eventlog.Position(len(l.streams[streamKey{entityType: entityType, entityID: entityID}]))
}

// LatestSnapshotRecord returns the stored snapshot for tests, without the
// failure injection applied to LatestSnapshot.
func (l *EventLog) LatestSnapshotRecord(entityType string, entityID string) (eventlog.Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot, exists := l.snapshots[streamKey{entityType: entityType, entityID: entityID}]

	return snapshot, exists
}
