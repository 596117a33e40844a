package profile

import (
	"github.com/entitykit/entity-lifecycle-go/entity"
)

// ProfileIDString is the type for profile identifiers.
type ProfileIDString = string

// OccurredAtTS represents when an event occurred.
type OccurredAtTS = entity.OccurredAtTS
