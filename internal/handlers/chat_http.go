package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/middleware"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// ChatHandler exposes rooms, messages, typing and presence over HTTP.
// Every route expects middleware.Auth in front of it.
type ChatHandler struct {
	messaging *services.MessagingService
	presence  *services.PresenceCoordinator
	rooms     *services.RoomService
}

func NewChatHandler(messaging *services.MessagingService, presence *services.PresenceCoordinator, rooms *services.RoomService) *ChatHandler {
	return &ChatHandler{messaging: messaging, presence: presence, rooms: rooms}
}

func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
	}
	return p, ok
}

func queryLimit(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// ListMessages loads a page of room history.
// Query params:
//
//	limit  (optional, default 50, max 100)
//	before (optional RFC3339 timestamp for pagination)
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var before *time.Time
	if s := r.URL.Query().Get("before"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "invalid_input", "before must be an RFC3339 timestamp")
			return
		}
		before = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit := queryLimit(r)
	msgs, err := h.messaging.FetchMessages(ctx, chi.URLParam(r, "roomId"), p, limit, before)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if limit <= 0 {
		limit = services.DefaultMessagePage
	}
	writeJSON(w, http.StatusOK, envelope{
		"messages": msgs,
		"has_more": len(msgs) >= limit,
	})
}

// PostMessage body: {"content": "...", "reply_to": "<id>", "attachments": [...]}
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in services.PostMessageInput
	if !decodeBody(w, r, &in) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	msg, err := h.messaging.PostMessage(ctx, chi.URLParam(r, "roomId"), p, in)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"data": msg})
}

type updateMessageRequest struct {
	Action  string `json:"action"` // "edit" or "delete"
	Content string `json:"content,omitempty"`
}

// UpdateMessage edits or soft-deletes a message the caller sent.
func (h *ChatHandler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	roomID, messageID := chi.URLParam(r, "roomId"), chi.URLParam(r, "messageId")
	var (
		msg *models.ChatMessage
		err error
	)
	switch req.Action {
	case "edit":
		msg, err = h.messaging.EditMessage(ctx, roomID, messageID, p, req.Content)
	case "delete":
		msg, err = h.messaging.DeleteMessage(ctx, roomID, messageID, p)
	default:
		writeFail(w, http.StatusBadRequest, "invalid_input", `action must be "edit" or "delete"`)
		return
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"data": msg})
}

type reactionRequest struct {
	Type string `json:"type"`
}

// ToggleReaction body: {"type": "🔥"}
func (h *ChatHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req reactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	msg, err := h.messaging.ToggleReaction(ctx, chi.URLParam(r, "roomId"), chi.URLParam(r, "messageId"), p, req.Type)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"data": msg})
}

// PollRoom is the fallback for clients without a socket: the room, messages
// after lastMessageId, and who is typing.
func (h *ChatHandler) PollRoom(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	roomID := chi.URLParam(r, "roomId")
	room, err := h.rooms.GetRoom(ctx, p, roomID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	msgs, err := h.messaging.MessagesSince(ctx, roomID, p, r.URL.Query().Get("lastMessageId"), queryLimit(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	typing, err := h.presence.TypingUsers(ctx, roomID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"room":         room,
		"messages":     msgs,
		"typing_users": typing,
	})
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// SetTyping body: {"is_typing": true}
func (h *ChatHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req typingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	typing, err := h.presence.SetTyping(ctx, chi.URLParam(r, "roomId"), p, req.IsTyping)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"typing_users": typing})
}

func (h *ChatHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rooms, err := h.rooms.ListRooms(ctx, p)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"rooms": rooms})
}

// CreateRoom is admin only.
func (h *ChatHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in services.CreateRoomInput
	if !decodeBody(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	room, err := h.rooms.CreateRoom(ctx, p, in)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"data": room})
}

// OnlineUsers lists who else is online. Query: limit (optional).
func (h *ChatHandler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	users, err := h.presence.OnlineUsers(ctx, p.UserID, queryLimit(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"users": users})
}
