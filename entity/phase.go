package entity

// Phase is the lifecycle phase of an entity, derived from its current state
// rather than stored explicitly. Phase transitions only move forward:
// Uninitialized -> Live -> Deleted. No transition reverses without an
// entirely new entity identifier.
type Phase int

const (
	// Uninitialized means the state still equals the initial sentinel (no creation event applied).
	Uninitialized Phase = iota

	// Live means the entity has been created and not deleted.
	Live

	// Deleted means the entity has been marked as deleted; it accepts no further commands.
	Deleted
)

// String provides a string representation of Phase for logging and debugging.
func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Live:
		return "live"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// DerivePhase derives the lifecycle phase from the given state.
// A nil state is treated as the initial sentinel.
func DerivePhase(state State) Phase {
	switch {
	case state == nil || state.IsInitial():
		return Uninitialized
	case state.IsDeleted():
		return Deleted
	default:
		return Live
	}
}

// IsAcceptingCommand is the single gating point before any command reaches
// kind-specific handling. It returns false when the entity is Deleted, or
// when the entity is Uninitialized and the command is not a designated
// creation command. All other commands are accepted in the Live phase.
func IsAcceptingCommand(kind Kind, state State, command Command) bool {
	switch DerivePhase(state) {
	case Deleted:
		return false
	case Uninitialized:
		return kind.IsCreationCommand(command)
	default:
		return true
	}
}
