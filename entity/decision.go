package entity

// DecisionResult represents the outcome of a business decision in a Decide function.
// This enables type-safe, functional programming style decision modeling.
//
// IMPORTANT: DecisionResult should only be constructed using the provided factory methods:
// IdempotentDecision(), SuccessDecision(events...), or ErrorDecision(err, events...).
// Do not construct DecisionResult directly to ensure type safety.
type DecisionResult struct {
	Outcome string       // "idempotent", "success", or "error"
	Events  DomainEvents // empty for idempotent decisions
	Err     error
}

const (
	idempotentOutcome = "idempotent"
	successOutcome    = "success"
	errorOutcome      = "error"
)

// IdempotentDecision creates a DecisionResult indicating no state change is needed.
func IdempotentDecision() DecisionResult {
	return DecisionResult{
		Outcome: idempotentOutcome,
	}
}

// SuccessDecision creates a DecisionResult indicating a successful state change
// with one or more events to append.
func SuccessDecision(event DomainEvent, additionalEvents ...DomainEvent) DecisionResult {
	events := DomainEvents{event}
	events = append(events, additionalEvents...)

	return DecisionResult{
		Outcome: successOutcome,
		Events:  events,
	}
}

// ErrorDecision creates a DecisionResult indicating a business rule violation.
// Kinds that record failures may supply error events to append alongside.
func ErrorDecision(err error, events ...DomainEvent) DecisionResult {
	return DecisionResult{
		Outcome: errorOutcome,
		Events:  events,
		Err:     err,
	}
}

// HasEventsToAppend returns true if there are events to append to the event log.
func (r DecisionResult) HasEventsToAppend() bool {
	return len(r.Events) > 0
}

// HasError returns the error if there is one, otherwise nil.
func (r DecisionResult) HasError() error {
	if r.Outcome == errorOutcome {
		return r.Err
	}

	return nil
}
