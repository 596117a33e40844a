package profile

// Command type identifiers.
const (
	RegisterProfileCommandType   = "RegisterProfile"
	ChangeDisplayNameCommandType = "ChangeDisplayName"
	ChangeEmailCommandType       = "ChangeEmail"
)

// RegisterProfile is the creation command for a customer profile.
type RegisterProfile struct {
	ProfileID    ProfileIDString
	DisplayName  string
	EmailAddress string
}

// CommandType returns the command type identifier.
func (c RegisterProfile) CommandType() string {
	return RegisterProfileCommandType
}

// ChangeDisplayName changes the profile's display name.
type ChangeDisplayName struct {
	ProfileID   ProfileIDString
	DisplayName string
}

// CommandType returns the command type identifier.
func (c ChangeDisplayName) CommandType() string {
	return ChangeDisplayNameCommandType
}

// ChangeEmail changes the profile's email address.
type ChangeEmail struct {
	ProfileID    ProfileIDString
	EmailAddress string
}

// CommandType returns the command type identifier.
func (c ChangeEmail) CommandType() string {
	return ChangeEmailCommandType
}
