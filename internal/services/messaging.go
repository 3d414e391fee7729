package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/realtime"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxMessageLength    = 4000
	DefaultMessagePage  = 50
	MaxMessagePage      = 100
	maxAttachments      = 10
	maxReactionTypeSize = 32
)

type PostMessageInput struct {
	Content     string              `json:"content"`
	ReplyTo     string              `json:"reply_to,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// MessagingService owns the lifecycle of chat messages: post, edit, soft
// delete, reactions and paged reads with read receipts.
type MessagingService struct {
	rooms    store.RoomStore
	messages store.MessageStore
	broker   realtime.Broker
	now      func() time.Time
}

func NewMessagingService(rooms store.RoomStore, messages store.MessageStore, broker realtime.Broker) *MessagingService {
	return &MessagingService{rooms: rooms, messages: messages, broker: broker, now: time.Now}
}

// PostMessage validates, persists and broadcasts a new message to the whole
// room, sender included.
func (s *MessagingService) PostMessage(ctx context.Context, roomID string, p models.Principal, in PostMessageInput) (*models.ChatMessage, error) {
	// Content is stored as sent; whitespace only counts as empty.
	content := in.Content
	if strings.TrimSpace(content) == "" {
		content = ""
	}
	if content == "" && len(in.Attachments) == 0 {
		return nil, invalid("message must have content or attachments")
	}
	if err := checkLength(content); err != nil {
		return nil, err
	}
	attachments, err := cleanAttachments(in.Attachments)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeRoom(ctx, s.rooms, roomID, p); err != nil {
		return nil, err
	}

	var reply *models.ReplyPreview
	if in.ReplyTo != "" {
		parent, err := s.messageInRoom(ctx, roomID, in.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("reply target: %w", err)
		}
		reply = &models.ReplyPreview{
			ID:             parent.ID,
			SenderID:       parent.SenderID,
			SenderUsername: parent.SenderUsername,
			Content:        parent.Content,
		}
	}

	now := s.now().UTC()
	msg := &models.ChatMessage{
		RoomID:         roomID,
		SenderID:       p.UserID,
		SenderUsername: p.Username,
		Content:        content,
		Attachments:    attachments,
		Reactions:      []models.Reaction{},
		ReadBy:         []string{p.UserID},
		DeliveryStatus: models.DeliveryStatusSent,
		ReplyTo:        reply,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, storeErr("post message", err)
	}

	log := logger.Ctx(ctx)
	if err := s.rooms.TouchRoom(ctx, roomID, now); err != nil {
		log.Warn().Err(err).Str(logger.FieldRoomID, roomID).Msg("failed to bump room activity")
	}
	s.broadcast(ctx, realtime.EventNewMessage, msg)
	return msg, nil
}

// EditMessage replaces the content of a message. Only its sender may edit,
// and deleted messages stay deleted.
func (s *MessagingService) EditMessage(ctx context.Context, roomID, messageID string, p models.Principal, content string) (*models.ChatMessage, error) {
	if _, err := authorizeRoom(ctx, s.rooms, roomID, p); err != nil {
		return nil, err
	}
	msg, err := s.messageInRoom(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != p.UserID {
		return nil, fmt.Errorf("edit message: %w", ErrForbidden)
	}
	if msg.IsDeleted {
		return nil, invalid("deleted messages cannot be edited")
	}
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content is required")
	}
	if err := checkLength(content); err != nil {
		return nil, err
	}

	updated, err := s.messages.EditContent(ctx, msg.ID, content, s.now().UTC())
	if err != nil {
		return nil, storeErr("edit message", err)
	}
	s.broadcast(ctx, realtime.EventMessageUpdated, updated)
	return updated, nil
}

// DeleteMessage soft-deletes: the content becomes a tombstone and
// attachments are dropped. Only the sender may delete.
func (s *MessagingService) DeleteMessage(ctx context.Context, roomID, messageID string, p models.Principal) (*models.ChatMessage, error) {
	if _, err := authorizeRoom(ctx, s.rooms, roomID, p); err != nil {
		return nil, err
	}
	msg, err := s.messageInRoom(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != p.UserID {
		return nil, fmt.Errorf("delete message: %w", ErrForbidden)
	}
	if msg.IsDeleted {
		return msg, nil
	}

	updated, err := s.messages.SoftDelete(ctx, msg.ID, s.now().UTC())
	if err != nil {
		return nil, storeErr("delete message", err)
	}
	s.broadcast(ctx, realtime.EventMessageUpdated, updated)
	return updated, nil
}

// ToggleReaction adds p's reaction of reactionType, or removes it when
// already present. Applying it twice restores the original set.
func (s *MessagingService) ToggleReaction(ctx context.Context, roomID, messageID string, p models.Principal, reactionType string) (*models.ChatMessage, error) {
	reactionType = strings.TrimSpace(reactionType)
	if reactionType == "" || utf8.RuneCountInString(reactionType) > maxReactionTypeSize {
		return nil, invalid("reaction type must be 1-%d characters", maxReactionTypeSize)
	}
	if _, err := authorizeRoom(ctx, s.rooms, roomID, p); err != nil {
		return nil, err
	}
	msg, err := s.messageInRoom(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, invalid("deleted messages cannot be reacted to")
	}

	updated, err := s.messages.ToggleReaction(ctx, msg.ID, models.Reaction{
		UserID:    p.UserID,
		Username:  p.Username,
		Type:      reactionType,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return nil, storeErr("toggle reaction", err)
	}
	s.broadcast(ctx, realtime.EventMessageUpdated, updated)
	return updated, nil
}

// FetchMessages returns a chronological page of messages created before
// `before` (the newest page when nil) and marks the ones p did not send as
// read by p.
func (s *MessagingService) FetchMessages(ctx context.Context, roomID string, p models.Principal, limit int, before *time.Time) ([]models.ChatMessage, error) {
	if _, err := authorizeRoom(ctx, s.rooms, roomID, p); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListMessages(ctx, roomID, before, pageSize(limit))
	if err != nil {
		return nil, storeErr("fetch messages", err)
	}
	return s.markRead(ctx, msgs, p)
}

// MessagesSince returns messages created after lastMessageID for clients
// polling without a socket. An expired cursor falls back to the time encoded
// in its ID.
func (s *MessagingService) MessagesSince(ctx context.Context, roomID string, p models.Principal, lastMessageID string, limit int) ([]models.ChatMessage, error) {
	if lastMessageID == "" {
		return s.FetchMessages(ctx, roomID, p, limit, nil)
	}
	cursor, err := primitive.ObjectIDFromHex(lastMessageID)
	if err != nil {
		return nil, invalid("malformed message id")
	}
	if _, err := authorizeRoom(ctx, s.rooms, roomID, p); err != nil {
		return nil, err
	}

	after := cursor.Timestamp()
	if last, err := s.messages.GetMessage(ctx, cursor); err == nil {
		after = last.CreatedAt
	}

	msgs, err := s.messages.ListMessagesAfter(ctx, roomID, after, cursor, pageSize(limit))
	if err != nil {
		return nil, storeErr("messages since", err)
	}
	return s.markRead(ctx, msgs, p)
}

// markRead records p as a reader of every message in msgs it did not send and
// returns msgs reflecting that. Soft-deleted messages count too.
func (s *MessagingService) markRead(ctx context.Context, msgs []models.ChatMessage, p models.Principal) ([]models.ChatMessage, error) {
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	var ids []primitive.ObjectID
	for _, m := range msgs {
		if m.SenderID != p.UserID && !m.IsReadBy(p.UserID) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return msgs, nil
	}
	if err := s.messages.MarkRead(ctx, ids, p.UserID); err != nil {
		return nil, storeErr("mark read", err)
	}
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == p.UserID || m.IsReadBy(p.UserID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, p.UserID)
		m.DeliveryStatus = models.DeliveryStatusRead
	}
	return msgs, nil
}

// messageInRoom loads a message and reports NotFound when it belongs to another room.
func (s *MessagingService) messageInRoom(ctx context.Context, roomID, messageID string) (*models.ChatMessage, error) {
	id, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, invalid("malformed message id")
	}
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, storeErr("message "+messageID, err)
	}
	if msg.RoomID != roomID {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return msg, nil
}

func (s *MessagingService) broadcast(ctx context.Context, eventType string, msg *models.ChatMessage) {
	err := s.broker.Publish(ctx, realtime.ToRoom(msg.RoomID, realtime.Event{
		Type:      eventType,
		RoomID:    msg.RoomID,
		UserID:    msg.SenderID,
		Username:  msg.SenderUsername,
		Message:   msg,
		Timestamp: s.now().UTC(),
	}))
	if err != nil {
		log := logger.Ctx(ctx)
		log.Error().Err(err).Str(logger.FieldRoomID, msg.RoomID).Str("event", eventType).Msg("failed to broadcast message")
	}
}

func checkLength(content string) error {
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return invalid("message exceeds %d characters", MaxMessageLength)
	}
	return nil
}

func cleanAttachments(in []models.Attachment) ([]models.Attachment, error) {
	if len(in) > maxAttachments {
		return nil, invalid("at most %d attachments", maxAttachments)
	}
	out := make([]models.Attachment, 0, len(in))
	for _, a := range in {
		a.URL = strings.TrimSpace(a.URL)
		if a.URL == "" {
			return nil, invalid("attachment url is required")
		}
		if a.Size < 0 {
			return nil, invalid("attachment size must not be negative")
		}
		out = append(out, a)
	}
	return out, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultMessagePage
	}
	if limit > MaxMessagePage {
		return MaxMessagePage
	}
	return limit
}
