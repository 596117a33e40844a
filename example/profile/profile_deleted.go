package profile

import (
	"time"

	"github.com/entitykit/entity-lifecycle-go/entity"
)

// ProfileDeletedEventType is the event type identifier.
const ProfileDeletedEventType = "ProfileDeleted"

// ProfileDeleted represents when a customer profile is deleted.
// It is the terminating event of a profile's lifecycle.
type ProfileDeleted struct {
	ProfileID  ProfileIDString `json:"profileID"`
	OccurredAt OccurredAtTS    `json:"occurredAt"`
}

// BuildProfileDeleted creates a new ProfileDeleted event.
func BuildProfileDeleted(profileID ProfileIDString, occurredAt time.Time) ProfileDeleted {
	event := ProfileDeleted{
		ProfileID:  profileID,
		OccurredAt: entity.ToOccurredAt(occurredAt),
	}

	return event
}

// EventType returns the event type identifier.
func (e ProfileDeleted) EventType() string {
	return ProfileDeletedEventType
}

// HasOccurredAt returns when this event occurred.
func (e ProfileDeleted) HasOccurredAt() time.Time {
	return e.OccurredAt
}
