package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/realtime"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store"
)

const (
	// DefaultAwayWindow is how long an "away" user still counts as online.
	DefaultAwayWindow = 5 * time.Minute

	defaultOnlineLimit = 50
	maxOnlineLimit     = 200

	userLockStripes = 64
)

// PresenceCoordinator tracks who is connected, their status, and who is typing
// where. It never polls connection liveness; the transport reports failures
// through Disconnect.
type PresenceCoordinator struct {
	users  store.UserStore
	rooms  store.RoomStore
	typing TypingStore
	hub    *realtime.Hub
	broker realtime.Broker

	awayWindow time.Duration
	now        func() time.Time

	// userLocks serialize Connect and Disconnect per user so the persisted
	// status always matches the last transition.
	userLocks [userLockStripes]sync.Mutex
}

type PresenceOption func(*PresenceCoordinator)

func WithAwayWindow(d time.Duration) PresenceOption {
	return func(c *PresenceCoordinator) {
		if d > 0 {
			c.awayWindow = d
		}
	}
}

// WithPresenceClock overrides the time source.
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(c *PresenceCoordinator) { c.now = now }
}

func NewPresenceCoordinator(users store.UserStore, rooms store.RoomStore, typing TypingStore, hub *realtime.Hub, broker realtime.Broker, opts ...PresenceOption) *PresenceCoordinator {
	c := &PresenceCoordinator{
		users:      users,
		rooms:      rooms,
		typing:     typing,
		hub:        hub,
		broker:     broker,
		awayWindow: DefaultAwayWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect registers the connection, marks the user online and tells everyone else.
func (c *PresenceCoordinator) Connect(ctx context.Context, client *realtime.Client) {
	p := client.Principal
	mu := c.userLock(p.UserID)
	mu.Lock()
	defer mu.Unlock()

	conns := c.hub.Register(client)
	now := c.now().UTC()

	log := logger.Ctx(ctx)
	log.Info().Str(logger.FieldUserID, p.UserID).Str(logger.FieldConnID, client.ID).
		Int("connections", conns).Msg("chat client connected")

	c.persistStatus(ctx, p, models.StatusOnline, now)

	c.publish(ctx, realtime.ToAll(realtime.Event{
		Type: realtime.EventPresenceChanged, UserID: p.UserID, Username: p.Username,
		Status: models.StatusOnline, LastActive: &now, Timestamp: now,
	}).Excluding(p.UserID))
	c.publish(ctx, realtime.ToAll(realtime.Event{
		Type: realtime.EventUserConnected, UserID: p.UserID, Username: p.Username, Timestamp: now,
	}).Excluding(p.UserID))
}

// Disconnect drops the connection from every room group and clears its typing
// entries. The user goes offline only when their last connection is gone.
// Calling it twice for the same connection is a no-op.
func (c *PresenceCoordinator) Disconnect(ctx context.Context, client *realtime.Client) {
	p := client.Principal
	mu := c.userLock(p.UserID)
	mu.Lock()
	defer mu.Unlock()

	remaining, rooms, ok := c.hub.Unregister(client)
	if !ok {
		return
	}

	log := logger.Ctx(ctx)
	log.Info().Str(logger.FieldUserID, p.UserID).Str(logger.FieldConnID, client.ID).
		Int("connections", remaining).Msg("chat client disconnected")

	for _, roomID := range rooms {
		c.clearTyping(ctx, roomID, p)
	}

	if remaining > 0 {
		return
	}

	now := c.now().UTC()
	c.persistStatus(ctx, p, models.StatusOffline, now)

	c.publish(ctx, realtime.ToAll(realtime.Event{
		Type: realtime.EventPresenceChanged, UserID: p.UserID, Username: p.Username,
		Status: models.StatusOffline, LastActive: &now, Timestamp: now,
	}).Excluding(p.UserID))
	c.publish(ctx, realtime.ToAll(realtime.Event{
		Type: realtime.EventUserDisconnected, UserID: p.UserID, Username: p.Username, Timestamp: now,
	}).Excluding(p.UserID))
}

func (c *PresenceCoordinator) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &c.userLocks[h.Sum32()%userLockStripes]
}

// SetStatus records an explicit status change. The user's other connections
// receive the same event so every device stays in sync.
func (c *PresenceCoordinator) SetStatus(ctx context.Context, p models.Principal, status models.PresenceStatus) error {
	if !status.Valid() {
		return invalid("unknown status %q", status)
	}
	now := c.now().UTC()
	c.persistStatus(ctx, p, status, now)

	ev := realtime.Event{
		Type: realtime.EventPresenceChanged, UserID: p.UserID, Username: p.Username,
		Status: status, LastActive: &now, Timestamp: now,
	}
	c.publish(ctx, realtime.ToAll(ev).Excluding(p.UserID))
	c.publish(ctx, realtime.ToUser(p.UserID, ev))
	return nil
}

// JoinRoom subscribes the connection to roomID and sends it the room's
// current typing set.
func (c *PresenceCoordinator) JoinRoom(ctx context.Context, client *realtime.Client, roomID string) error {
	if _, err := authorizeRoom(ctx, c.rooms, roomID, client.Principal); err != nil {
		return err
	}
	c.hub.JoinRoom(client, roomID)

	typing, err := c.TypingUsers(ctx, roomID)
	if err != nil {
		return err
	}
	client.SendEvent(realtime.Event{Type: realtime.EventTypingChanged, RoomID: roomID, TypingUsers: typing, Timestamp: c.now().UTC()})
	return nil
}

// LeaveRoom unsubscribes the connection. Leaving a room never joined is a no-op.
func (c *PresenceCoordinator) LeaveRoom(ctx context.Context, client *realtime.Client, roomID string) error {
	if roomID == "" {
		return invalid("room id is required")
	}
	if c.hub.LeaveRoom(client, roomID) {
		c.clearTyping(ctx, roomID, client.Principal)
	}
	return nil
}

// SetTyping upserts or removes p's typing entry and broadcasts the room's
// new typing set to everyone in the room except p.
func (c *PresenceCoordinator) SetTyping(ctx context.Context, roomID string, p models.Principal, isTyping bool) ([]models.TypingEntry, error) {
	if _, err := authorizeRoom(ctx, c.rooms, roomID, p); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	var err error
	if isTyping {
		err = c.typing.Set(ctx, roomID, models.TypingEntry{UserID: p.UserID, Username: p.Username, Timestamp: now})
	} else {
		err = c.typing.Remove(ctx, roomID, p.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("set typing: %w: %v", ErrTransient, err)
	}

	typing, err := c.TypingUsers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, realtime.ToRoom(roomID, realtime.Event{
		Type: realtime.EventTypingChanged, RoomID: roomID, TypingUsers: typing, Timestamp: now,
	}).Excluding(p.UserID))
	return typing, nil
}

// TypingUsers returns the room's non-expired typing entries.
func (c *PresenceCoordinator) TypingUsers(ctx context.Context, roomID string) ([]models.TypingEntry, error) {
	entries, err := c.typing.List(ctx, roomID, c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("typing users: %w: %v", ErrTransient, err)
	}
	return entries, nil
}

// OnlineUsers lists users who are online, or away and active within the away window.
func (c *PresenceCoordinator) OnlineUsers(ctx context.Context, excludingUserID string, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = defaultOnlineLimit
	}
	if limit > maxOnlineLimit {
		limit = maxOnlineLimit
	}
	users, err := c.users.ListOnline(ctx, excludingUserID, c.now().UTC().Add(-c.awayWindow), limit)
	if err != nil {
		return nil, storeErr("online users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

func (c *PresenceCoordinator) clearTyping(ctx context.Context, roomID string, p models.Principal) {
	log := logger.Ctx(ctx)
	if err := c.typing.Remove(ctx, roomID, p.UserID); err != nil {
		log.Warn().Err(err).Str(logger.FieldRoomID, roomID).Str(logger.FieldUserID, p.UserID).Msg("failed to clear typing entry")
		return
	}
	typing, err := c.TypingUsers(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Str(logger.FieldRoomID, roomID).Msg("failed to list typing users")
		return
	}
	c.publish(ctx, realtime.ToRoom(roomID, realtime.Event{
		Type: realtime.EventTypingChanged, RoomID: roomID, TypingUsers: typing, Timestamp: c.now().UTC(),
	}).Excluding(p.UserID))
}

// persistStatus writes the status; failures are logged and otherwise ignored.
func (c *PresenceCoordinator) persistStatus(ctx context.Context, p models.Principal, status models.PresenceStatus, at time.Time) {
	if err := c.users.SetPresence(ctx, p, status, at); err != nil {
		log := logger.Ctx(ctx)
		log.Error().Err(err).Str(logger.FieldUserID, p.UserID).Str("status", string(status)).Msg("failed to persist presence")
	}
}

func (c *PresenceCoordinator) publish(ctx context.Context, env realtime.Envelope) {
	if err := c.broker.Publish(ctx, env); err != nil {
		log := logger.Ctx(ctx)
		log.Error().Err(err).Str("event", env.Event.Type).Msg("failed to publish event")
	}
}
