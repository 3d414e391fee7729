// Package store defines the persistence contract for users, chat rooms and messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a document does not exist (or has already expired).
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("store: duplicate key")
)

// Collection names shared with the rest of the dashboard.
const (
	UsersCollection            = "users"
	RoomsCollection            = "chat_rooms"
	MessagesCollection         = "chat_messages"
	AirdropsCollection         = "airdrops"
	QuestsCollection           = "quests"
	QuestCompletionsCollection = "quest_completions"
)

// DefaultMessageTTL is how long a message lives after creation.
const DefaultMessageTTL = 24 * time.Hour

type UserStore interface {
	// SetPresence upserts the user's status and last-active stamp.
	SetPresence(ctx context.Context, p models.Principal, status models.PresenceStatus, at time.Time) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// ListOnline returns users that are online, or away with LastActive >= awayCutoff,
	// most recently active first.
	ListOnline(ctx context.Context, excluding string, awayCutoff time.Time, limit int) ([]models.User, error)
}

type RoomStore interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	// EnsureRoom inserts the room unless a room with the same ID exists.
	EnsureRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, id string) (*models.ChatRoom, error)
	// ListRooms returns public rooms plus private rooms userID is a member of.
	ListRooms(ctx context.Context, userID string) ([]models.ChatRoom, error)
	TouchRoom(ctx context.Context, id string, at time.Time) error
}

type MessageStore interface {
	// InsertMessage persists msg and assigns its ID.
	InsertMessage(ctx context.Context, msg *models.ChatMessage) error
	GetMessage(ctx context.Context, id primitive.ObjectID) (*models.ChatMessage, error)
	// ListMessages returns up to limit of the newest messages created before
	// `before` (or the newest overall when nil), oldest first.
	ListMessages(ctx context.Context, roomID string, before *time.Time, limit int) ([]models.ChatMessage, error)
	// ListMessagesAfter returns up to limit messages ordered after the cursor
	// (createdAt, id), oldest first.
	ListMessagesAfter(ctx context.Context, roomID string, after time.Time, afterID primitive.ObjectID, limit int) ([]models.ChatMessage, error)
	EditContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) (*models.ChatMessage, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.ChatMessage, error)
	// ToggleReaction removes the user's reaction of r.Type if present, otherwise appends r.
	ToggleReaction(ctx context.Context, id primitive.ObjectID, r models.Reaction) (*models.ChatMessage, error)
	// MarkRead adds userID to ReadBy of every listed message not sent by userID
	// and flips their delivery status to read.
	MarkRead(ctx context.Context, ids []primitive.ObjectID, userID string) error
}

// Store is the full persistence layer.
type Store interface {
	UserStore
	RoomStore
	MessageStore
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}
