package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryStatus is the delivery/read status of a message from the sender's point-of-view.
type DeliveryStatus string

const (
	DeliveryStatusSent DeliveryStatus = "sent"
	DeliveryStatusRead DeliveryStatus = "read"
)

// DeletedMessageContent replaces the content of a soft-deleted message.
const DeletedMessageContent = "This message was deleted"

// ChatRoom groups messages and typing/presence broadcasts.
type ChatRoom struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Topic       string    `bson:"topic,omitempty" json:"topic,omitempty"`
	IsPublic    bool      `bson:"is_public" json:"is_public"`
	Members     []string  `bson:"members,omitempty" json:"members,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// CanRead reports whether the user may read and post in the room.
func (r *ChatRoom) CanRead(userID string) bool {
	if r.IsPublic {
		return true
	}
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Attachment is a file reference attached to a message. Uploading is handled elsewhere.
type Attachment struct {
	URL  string `bson:"url" json:"url"`
	Type string `bson:"type,omitempty" json:"type,omitempty"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
	Size int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// Reaction is one user's reaction of one type on a message.
type Reaction struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Username  string    `bson:"username" json:"username"`
	Type      string    `bson:"type" json:"type"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// ReplyPreview is the resolved preview of the message being replied to.
type ReplyPreview struct {
	ID             primitive.ObjectID `bson:"id" json:"id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	SenderUsername string             `bson:"sender_username" json:"sender_username"`
	Content        string             `bson:"content" json:"content"`
}

// ChatMessage is stored in MongoDB, one document per message.
// Documents are hard-deleted by a TTL index 24 hours after CreatedAt.
type ChatMessage struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RoomID         string             `bson:"room_id" json:"room_id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	SenderUsername string             `bson:"sender_username" json:"sender_username"`
	Content        string             `bson:"content" json:"content"`
	Attachments    []Attachment       `bson:"attachments" json:"attachments"`
	Reactions      []Reaction         `bson:"reactions" json:"reactions"`
	ReadBy         []string           `bson:"read_by" json:"read_by"`
	DeliveryStatus DeliveryStatus     `bson:"delivery_status" json:"delivery_status"`
	IsEdited       bool               `bson:"is_edited" json:"is_edited"`
	IsDeleted      bool               `bson:"is_deleted" json:"is_deleted"`
	ReplyTo        *ReplyPreview      `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsReadBy reports whether userID is in ReadBy.
func (m *ChatMessage) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// TypingEntry is an ephemeral "user is typing" marker for one room.
type TypingEntry struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}
