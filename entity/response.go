package entity

// Response is the uniform answer shape for every operation on an entity:
// Empty (no visible state), Full (the current state), or Failed (an error).
//
// A command rejected by the admissibility gate is answered with the current
// state response - an explicit no-op, not a failure.
//
// IMPORTANT: Response should only be constructed using the provided factory
// methods: EmptyResponse(), FullResponse(state), or FailedResponse(err).
type Response struct {
	Outcome string // "empty", "full", or "failed"
	State   State  // nil unless Outcome is "full"
	Err     error  // nil unless Outcome is "failed"
}

const (
	emptyOutcome  = "empty"
	fullOutcome   = "full"
	failedOutcome = "failed"
)

// EmptyResponse creates a Response for an entity with no visible state
// (uninitialized, or deleted under a deletion-respecting read).
func EmptyResponse() Response {
	return Response{Outcome: emptyOutcome}
}

// FullResponse creates a Response carrying the entity's current full state.
func FullResponse(state State) Response {
	return Response{Outcome: fullOutcome, State: state}
}

// FailedResponse creates a Response for a failed operation.
func FailedResponse(err error) Response {
	return Response{Outcome: failedOutcome, Err: err}
}

// IsEmpty reports whether the response carries no visible state.
func (r Response) IsEmpty() bool {
	return r.Outcome == emptyOutcome
}

// IsFull reports whether the response carries the entity's full state.
func (r Response) IsFull() bool {
	return r.Outcome == fullOutcome
}

// HasFailed reports whether the operation failed.
func (r Response) HasFailed() bool {
	return r.Outcome == failedOutcome
}
