package profile

import (
	"time"

	"github.com/entitykit/entity-lifecycle-go/entity"
)

// ProfileDisplayNameChangedEventType is the event type identifier.
const ProfileDisplayNameChangedEventType = "ProfileDisplayNameChanged"

// ProfileDisplayNameChanged represents when a profile's display name is changed.
type ProfileDisplayNameChanged struct {
	ProfileID   ProfileIDString `json:"profileID"`
	DisplayName string          `json:"displayName"`
	OccurredAt  OccurredAtTS    `json:"occurredAt"`
}

// BuildProfileDisplayNameChanged creates a new ProfileDisplayNameChanged event.
func BuildProfileDisplayNameChanged(
	profileID ProfileIDString,
	displayName string,
	occurredAt time.Time,
) ProfileDisplayNameChanged {

	event := ProfileDisplayNameChanged{
		ProfileID:   profileID,
		DisplayName: displayName,
		OccurredAt:  entity.ToOccurredAt(occurredAt),
	}

	return event
}

// EventType returns the event type identifier.
func (e ProfileDisplayNameChanged) EventType() string {
	return ProfileDisplayNameChangedEventType
}

// HasOccurredAt returns when this event occurred.
func (e ProfileDisplayNameChanged) HasOccurredAt() time.Time {
	return e.OccurredAt
}
