package entity

// Command represents the contract for all command types addressed to an entity.
// Each command encapsulates the intent and parameters needed to execute a
// specific business operation. The CommandType method enables polymorphic
// handling and observability instrumentation.
type Command interface {
	CommandType() string
}
