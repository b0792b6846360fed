package models

// PresenceState is the persisted online/offline state of a user.
type PresenceState string

const (
	StateOnline  PresenceState = "online"
	StateOffline PresenceState = "offline"
)

// GroupRole distinguishes the member that created a group from everyone else.
type GroupRole string

const (
	RoleCreator GroupRole = "creator"
	RoleNormal  GroupRole = "normal"
)

type User struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Password string        `json:"-"` // bcrypt hash, never serialized
	State    PresenceState `json:"state"`
}

// UserSummary is the shape returned for friend listings: identity plus
// presence, without the credential.
type UserSummary struct {
	ID    int64         `json:"id"`
	Name  string        `json:"name"`
	State PresenceState `json:"state"`
}

type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type GroupMember struct {
	GroupID int64     `json:"group_id"`
	UserID  int64     `json:"user_id"`
	Role    GroupRole `json:"role"`
}
