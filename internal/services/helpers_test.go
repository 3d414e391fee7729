package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/realtime"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

var (
	alice = models.Principal{UserID: "u-alice", Username: "alice", Role: models.RoleUser}
	bob   = models.Principal{UserID: "u-bob", Username: "bob", Role: models.RoleUser}
	admin = models.Principal{UserID: "u-admin", Username: "root", Role: models.RoleAdmin}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	clock     *fakeClock
	store     *memstore.Store
	hub       *realtime.Hub
	typing    *MemoryTypingStore
	presence  *PresenceCoordinator
	messaging *MessagingService
	rooms     *RoomService
}

// newTestEnv wires the services over an in-memory store with a public
// "general" room and a private "vip" room that only alice belongs to.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	st := memstore.New(memstore.WithClock(clock.Now))
	hub := realtime.NewHub()
	broker := realtime.NewLocalBroker(hub)
	typing := NewMemoryTypingStore(DefaultTypingWindow)

	env := &testEnv{
		clock:     clock,
		store:     st,
		hub:       hub,
		typing:    typing,
		presence:  NewPresenceCoordinator(st, st, typing, hub, broker, WithPresenceClock(clock.Now)),
		messaging: NewMessagingService(st, st, broker),
		rooms:     NewRoomService(st),
	}
	env.messaging.now = clock.Now
	env.rooms.now = clock.Now

	ctx := context.Background()
	require.NoError(t, st.CreateRoom(ctx, &models.ChatRoom{ID: "general", Name: "General", IsPublic: true, CreatedAt: clock.Now(), UpdatedAt: clock.Now()}))
	require.NoError(t, st.CreateRoom(ctx, &models.ChatRoom{ID: "vip", Name: "VIP", Members: []string{alice.UserID}, CreatedAt: clock.Now(), UpdatedAt: clock.Now()}))
	return env
}

// connect registers a connection for p and discards the events it caused.
func (e *testEnv) connect(t *testing.T, p models.Principal) *realtime.Client {
	t.Helper()
	c := realtime.NewClient(p, nil, realtime.ConnConfig{SendBuffer: 64})
	e.presence.Connect(context.Background(), c)
	return c
}

// events drains every event queued for c.
func events(t *testing.T, c *realtime.Client) []realtime.Event {
	t.Helper()
	var out []realtime.Event
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var ev realtime.Event
			require.NoError(t, json.Unmarshal(data, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []realtime.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}
