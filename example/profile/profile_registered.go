package profile

import (
	"time"

	"github.com/entitykit/entity-lifecycle-go/entity"
)

// ProfileRegisteredEventType is the event type identifier.
const ProfileRegisteredEventType = "ProfileRegistered"

// ProfileRegistered represents when a new customer profile is registered.
type ProfileRegistered struct {
	ProfileID    ProfileIDString `json:"profileID"`
	DisplayName  string          `json:"displayName"`
	EmailAddress string          `json:"emailAddress"`
	OccurredAt   OccurredAtTS    `json:"occurredAt"`
}

// BuildProfileRegistered creates a new ProfileRegistered event.
func BuildProfileRegistered(
	profileID ProfileIDString,
	displayName string,
	emailAddress string,
	occurredAt time.Time,
) ProfileRegistered {

	event := ProfileRegistered{
		ProfileID:    profileID,
		DisplayName:  displayName,
		EmailAddress: emailAddress,
		OccurredAt:   entity.ToOccurredAt(occurredAt),
	}

	return event
}

// EventType returns the event type identifier.
func (e ProfileRegistered) EventType() string {
	return ProfileRegisteredEventType
}

// HasOccurredAt returns when this event occurred.
func (e ProfileRegistered) HasOccurredAt() time.Time {
	return e.OccurredAt
}
