// Package lifecycle implements the controller that owns one entity state
// machine instance scoped to one entity identifier.
//
// A Controller recovers its state from the event log on start (latest
// snapshot plus tail replay), then processes commands strictly one at a time
// in arrival order on a single goroutine. Persisted events are applied to the
// in-memory state synchronously; snapshot compaction runs detached from the
// command path; an idle window drives the coordinated passivation handshake
// with the routing layer.
//
// The event log, the projection-readiness signal, and the routing layer are
// consumed through the narrow interfaces declared in this package, keeping
// the controller agnostic of the concrete engines wired in by the caller.
package lifecycle
