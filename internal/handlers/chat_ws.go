package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/middleware"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/realtime"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/services"
	"github.com/gorilla/websocket"
)

// ChatSocket is the realtime gateway: GET /ws?token=... (or Authorization: Bearer).
// A connection starts in no room; clients send join-room for each room they view.
type ChatSocket struct {
	resolver middleware.Resolver
	presence *services.PresenceCoordinator
	upgrader websocket.Upgrader
	conn     realtime.ConnConfig
}

func NewChatSocket(resolver middleware.Resolver, presence *services.PresenceCoordinator, allowedOrigins []string, cfg realtime.ConnConfig) *ChatSocket {
	return &ChatSocket{
		resolver: resolver,
		presence: presence,
		conn:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker allows non-browser clients (no Origin) and the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSpace(a), origin) {
				return true
			}
		}
		return false
	}
}

func (s *ChatSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Authenticate before upgrading so failures are plain HTTP 401s.
	p, err := s.resolver.Resolve(middleware.TokenFromRequest(r))
	if err != nil {
		writeFail(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	client := realtime.NewClient(p, conn, s.conn)

	// The connection outlives the request context.
	l := logger.Ctx(r.Context()).With().Str(logger.FieldUserID, p.UserID).Str(logger.FieldConnID, client.ID).Logger()
	ctx := logger.WithLogger(context.Background(), l)

	s.presence.Connect(ctx, client)
	go client.WritePump()
	client.ReadPump(
		func(c *realtime.Client, data []byte) { s.handleAction(ctx, c, data) },
		func(c *realtime.Client) { s.presence.Disconnect(ctx, c) },
	)
}

func (s *ChatSocket) handleAction(base context.Context, c *realtime.Client, data []byte) {
	var act realtime.Action
	if err := json.Unmarshal(data, &act); err != nil {
		sendError(c, "", "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(base, requestTimeout)
	defer cancel()

	roomID := strings.TrimSpace(act.RoomID)
	var err error
	switch act.Type {
	case realtime.ActionJoinRoom:
		err = s.presence.JoinRoom(ctx, c, roomID)
	case realtime.ActionLeaveRoom:
		err = s.presence.LeaveRoom(ctx, c, roomID)
	case realtime.ActionSetTyping:
		_, err = s.presence.SetTyping(ctx, roomID, c.Principal, act.IsTyping)
	case realtime.ActionSetStatus:
		err = s.presence.SetStatus(ctx, c.Principal, act.Status)
	case realtime.ActionPing:
		c.SendEvent(realtime.Event{Type: realtime.EventPong, Timestamp: time.Now().UTC()})
	default:
		sendError(c, roomID, "unknown message type")
		return
	}
	if err != nil {
		log := logger.Ctx(ctx)
		log.Debug().Err(err).Str("action", act.Type).Str(logger.FieldRoomID, roomID).Msg("chat action rejected")
		sendError(c, roomID, publicMessage(err))
	}
}

func sendError(c *realtime.Client, roomID, message string) {
	c.SendEvent(realtime.Event{Type: realtime.EventError, RoomID: roomID, Error: message, Timestamp: time.Now().UTC()})
}
