package models

import "time"

// PresenceStatus is a user's online state.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// Roles stored on the user record and carried in the session token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the dashboard user document. The chat service only writes the presence fields.
type User struct {
	ID         string         `bson:"_id" json:"id"`
	Username   string         `bson:"username" json:"username"`
	Role       string         `bson:"role,omitempty" json:"role,omitempty"`
	Status     PresenceStatus `bson:"status" json:"status"`
	LastActive time.Time      `bson:"last_active" json:"last_active"`
	CreatedAt  time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at" json:"updated_at"`
}

// Principal is the authenticated identity attached to a request or connection.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
