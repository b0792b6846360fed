package store

import (
	"errors"

	"github.com/mascotdog/ChatServer/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

type UserStore interface {
	// CreateUser inserts a user and returns the generated id. The password
	// is stored as given; callers hash it first.
	CreateUser(name, password string) (int64, error)
	GetUserByID(id int64) (*models.User, error)
	SetPresence(id int64, state models.PresenceState) error
	// ResetAllToOffline clears stale presence after a restart.
	ResetAllToOffline() error
}

type FriendStore interface {
	AddFriend(userID, friendID int64) error
	ListFriends(userID int64) ([]models.UserSummary, error)
}

type GroupStore interface {
	CreateGroup(name, description string) (int64, error)
	AddGroupMember(groupID, userID int64, role models.GroupRole) error
	ListGroupMemberIDs(groupID int64) ([]int64, error)
}

type OfflineMessageStore interface {
	EnqueueOffline(userID int64, payload []byte) error
	// DrainOffline returns all queued payloads for a user in arrival order
	// and removes them, atomically.
	DrainOffline(userID int64) ([][]byte, error)
}

// Store bundles the four adapters for implementations that back all of them
// with one database, like sqlstore.
type Store interface {
	UserStore
	FriendStore
	GroupStore
	OfflineMessageStore
}
