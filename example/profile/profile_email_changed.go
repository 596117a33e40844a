package profile

import (
	"time"

	"github.com/google/uuid"

	"github.com/entitykit/entity-lifecycle-go/entity"
)

// ProfileEmailChangedEventType is the event type identifier.
const ProfileEmailChangedEventType = "ProfileEmailChanged"

// ProfileEmailChanged represents when a profile's email address is changed.
// The email address is indexed by downstream projections, so the event carries
// a consistency token: the originating command is not answered before the
// projection reports the token as visible.
type ProfileEmailChanged struct {
	ProfileID    ProfileIDString `json:"profileID"`
	EmailAddress string          `json:"emailAddress"`
	Token        uuid.UUID       `json:"token"`
	OccurredAt   OccurredAtTS    `json:"occurredAt"`
}

// BuildProfileEmailChanged creates a new ProfileEmailChanged event with a fresh consistency token.
func BuildProfileEmailChanged(
	profileID ProfileIDString,
	emailAddress string,
	occurredAt time.Time,
) ProfileEmailChanged {

	event := ProfileEmailChanged{
		ProfileID:    profileID,
		EmailAddress: emailAddress,
		Token:        uuid.New(),
		OccurredAt:   entity.ToOccurredAt(occurredAt),
	}

	return event
}

// EventType returns the event type identifier.
func (e ProfileEmailChanged) EventType() string {
	return ProfileEmailChangedEventType
}

// HasOccurredAt returns when this event occurred.
func (e ProfileEmailChanged) HasOccurredAt() time.Time {
	return e.OccurredAt
}

// ConsistencyToken returns the token identifying this event in projection readiness signals.
func (e ProfileEmailChanged) ConsistencyToken() uuid.UUID {
	return e.Token
}

// Ensure ProfileEmailChanged carries a consistency token.
var _ entity.CarriesConsistencyToken = ProfileEmailChanged{}
