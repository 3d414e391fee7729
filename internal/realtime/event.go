// Package realtime delivers chat events to connected WebSocket clients,
// either directly from this process or via Redis pub/sub across instances.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
)

// Server → client event types.
const (
	EventPresenceChanged  = "presence-changed"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventTypingChanged    = "typing-changed"
	EventNewMessage       = "new-message"
	EventMessageUpdated   = "message-updated"
	EventPong             = "pong"
	EventError            = "error"
)

// Client → server action types.
const (
	ActionJoinRoom  = "join-room"
	ActionLeaveRoom = "leave-room"
	ActionSetTyping = "set-typing"
	ActionSetStatus = "set-status"
	ActionPing      = "ping"
)

// Event is the JSON frame written to clients.
type Event struct {
	Type        string                `json:"type"`
	RoomID      string                `json:"room_id,omitempty"`
	UserID      string                `json:"user_id,omitempty"`
	Username    string                `json:"username,omitempty"`
	Status      models.PresenceStatus `json:"status,omitempty"`
	LastActive  *time.Time            `json:"last_active,omitempty"`
	Message     *models.ChatMessage   `json:"message,omitempty"`
	TypingUsers []models.TypingEntry  `json:"typing_users,omitempty"`
	Error       string                `json:"error,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

// MarshalJSON always emits typing_users on typing-changed, so an empty set
// reads as [] rather than a missing field.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	if e.Type != EventTypingChanged {
		return json.Marshal(alias(e))
	}
	users := e.TypingUsers
	if users == nil {
		users = []models.TypingEntry{}
	}
	return json.Marshal(struct {
		alias
		TypingUsers []models.TypingEntry `json:"typing_users"`
	}{alias(e), users})
}

// Action is a JSON frame read from clients.
type Action struct {
	Type     string                `json:"type"`
	RoomID   string                `json:"room_id,omitempty"`
	IsTyping bool                  `json:"is_typing,omitempty"`
	Status   models.PresenceStatus `json:"status,omitempty"`
}

type Scope string

const (
	ScopeRoom Scope = "room" // members of the Target room group
	ScopeUser Scope = "user" // every connection of the Target user
	ScopeAll  Scope = "all"  // every connection on every instance
)

// Envelope addresses an Event. ExcludeUserID suppresses delivery to all
// of that user's connections.
type Envelope struct {
	Scope         Scope  `json:"scope"`
	Target        string `json:"target,omitempty"`
	ExcludeUserID string `json:"exclude_user_id,omitempty"`
	Event         Event  `json:"event"`
}

func ToRoom(roomID string, ev Event) Envelope {
	return Envelope{Scope: ScopeRoom, Target: roomID, Event: ev}
}

func ToUser(userID string, ev Event) Envelope {
	return Envelope{Scope: ScopeUser, Target: userID, Event: ev}
}

func ToAll(ev Event) Envelope {
	return Envelope{Scope: ScopeAll, Event: ev}
}

// Excluding returns a copy of e that skips userID.
func (e Envelope) Excluding(userID string) Envelope {
	e.ExcludeUserID = userID
	return e
}
