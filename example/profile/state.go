package profile

// State is the replay-derived state of a customer profile.
// The zero value with only the ID set is the initial sentinel state.
type State struct {
	ID           ProfileIDString `json:"id"`
	DisplayName  string          `json:"displayName"`
	EmailAddress string          `json:"emailAddress"`
	Registered   bool            `json:"registered"`
	Deleted      bool            `json:"deleted"`
}

// EntityID returns the profile identifier.
func (s State) EntityID() string {
	return s.ID
}

// IsInitial reports whether no registration event has been applied yet.
func (s State) IsInitial() bool {
	return !s.Registered
}

// IsDeleted reports whether the profile has been deleted.
func (s State) IsDeleted() bool {
	return s.Deleted
}
