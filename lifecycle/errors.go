package lifecycle

import "errors"

var (
	// ErrNilKind is returned when a nil entity kind is supplied to NewController.
	ErrNilKind = errors.New("entity kind must not be nil")

	// ErrNilEventLog is returned when a nil event log is supplied to NewController.
	ErrNilEventLog = errors.New("event log must not be nil")

	// ErrEmptyEntityID is returned when an empty entity id is supplied to NewController.
	ErrEmptyEntityID = errors.New("entity id must not be empty")

	// ErrAlreadyStarted is returned when Start is called on a running controller.
	ErrAlreadyStarted = errors.New("controller already started")

	// ErrNotStarted is returned for operations on a controller that has not been started.
	ErrNotStarted = errors.New("controller not started")

	// ErrControllerStopped is returned for operations on a controller that has terminated.
	ErrControllerStopped = errors.New("controller stopped")

	// ErrRecoveryFailed is returned when the recovery protocol fails on start.
	// Recovery-time failures are fatal to instance startup: no partial or
	// ambiguous state is ever exposed.
	ErrRecoveryFailed = errors.New("recovery failed")

	// ErrEventAppendFailed is returned when persisting a command's events
	// fails. The failure is local to the in-flight command: the events were
	// never applied, the in-memory state is unchanged.
	ErrEventAppendFailed = errors.New("event append failed")

	// ErrConsistencyTimeout is returned when the bounded wait for the
	// read-store projection to reflect a consistency token expires.
	ErrConsistencyTimeout = errors.New("consistency wait timed out")
)
