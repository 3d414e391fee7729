package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_BroadcastsToOthersOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	watcher := env.connect(t, bob)
	events(t, watcher)

	c := env.connect(t, alice)
	assert.Empty(t, events(t, c), "the connecting user is excluded")

	evs := events(t, watcher)
	assert.Equal(t, []string{realtime.EventPresenceChanged, realtime.EventUserConnected}, eventTypes(evs))
	assert.Equal(t, alice.UserID, evs[0].UserID)
	assert.Equal(t, models.StatusOnline, evs[0].Status)

	u, err := env.store.GetUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, u.Status)
	assert.Equal(t, env.clock.Now(), u.LastActive)
}

func TestDisconnect_OfflineOnlyAfterLastConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	watcher := env.connect(t, bob)
	phone := env.connect(t, alice)
	laptop := env.connect(t, alice)
	events(t, watcher)

	env.presence.Disconnect(ctx, phone)
	assert.Empty(t, events(t, watcher))
	u, err := env.store.GetUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, u.Status)

	env.clock.Advance(time.Minute)
	env.presence.Disconnect(ctx, laptop)
	evs := events(t, watcher)
	assert.Equal(t, []string{realtime.EventPresenceChanged, realtime.EventUserDisconnected}, eventTypes(evs))
	assert.Equal(t, models.StatusOffline, evs[0].Status)

	u, err = env.store.GetUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, u.Status)
	assert.Equal(t, env.clock.Now(), u.LastActive)

	// repeated failure reports are ignored
	env.presence.Disconnect(ctx, laptop)
	assert.Empty(t, events(t, watcher))
}

func TestReconnectRacingLastDisconnectStaysOnline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		old := env.connect(t, alice)
		fresh := realtime.NewClient(alice, nil, realtime.ConnConfig{SendBuffer: 64})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			env.presence.Disconnect(ctx, old)
		}()
		go func() {
			defer wg.Done()
			env.presence.Connect(ctx, fresh)
		}()
		wg.Wait()

		require.Equal(t, 1, env.hub.UserConnections(alice.UserID))
		u, err := env.store.GetUser(ctx, alice.UserID)
		require.NoError(t, err)
		require.Equal(t, models.StatusOnline, u.Status, "iteration %d", i)

		env.presence.Disconnect(ctx, fresh)
	}
}

func TestTyping_ExpiresAfterWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.presence.SetTyping(ctx, "general", alice, true)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Second)
	typing, err := env.presence.TypingUsers(ctx, "general")
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, alice.UserID, typing[0].UserID)

	env.clock.Advance(DefaultTypingWindow - 2*time.Second)
	typing, err = env.presence.TypingUsers(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, typing, "an entry exactly one window old is gone")
}

func TestSetTyping_BroadcastExcludesTypist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	typist := env.connect(t, alice)
	reader := env.connect(t, bob)
	require.NoError(t, env.presence.JoinRoom(ctx, typist, "general"))
	require.NoError(t, env.presence.JoinRoom(ctx, reader, "general"))
	events(t, typist)
	events(t, reader)

	typing, err := env.presence.SetTyping(ctx, "general", alice, true)
	require.NoError(t, err)
	assert.Len(t, typing, 1)

	assert.Empty(t, events(t, typist))
	evs := events(t, reader)
	require.Len(t, evs, 1)
	assert.Equal(t, realtime.EventTypingChanged, evs[0].Type)
	require.Len(t, evs[0].TypingUsers, 1)
	assert.Equal(t, "alice", evs[0].TypingUsers[0].Username)

	typing, err = env.presence.SetTyping(ctx, "general", alice, false)
	require.NoError(t, err)
	assert.Empty(t, typing)
	evs = events(t, reader)
	require.Len(t, evs, 1)
	assert.Empty(t, evs[0].TypingUsers)

	_, err = env.presence.SetTyping(ctx, "vip", bob, true)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDisconnect_ClearsTyping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	typist := env.connect(t, alice)
	reader := env.connect(t, bob)
	require.NoError(t, env.presence.JoinRoom(ctx, typist, "general"))
	require.NoError(t, env.presence.JoinRoom(ctx, reader, "general"))
	_, err := env.presence.SetTyping(ctx, "general", alice, true)
	require.NoError(t, err)
	events(t, reader)

	env.presence.Disconnect(ctx, typist)

	typing, err := env.presence.TypingUsers(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, typing)
	assert.Contains(t, eventTypes(events(t, reader)), realtime.EventTypingChanged)
}

func TestJoinRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.connect(t, bob)

	assert.ErrorIs(t, env.presence.JoinRoom(ctx, c, "nowhere"), ErrNotFound)
	assert.ErrorIs(t, env.presence.JoinRoom(ctx, c, "vip"), ErrForbidden)
	assert.False(t, c.InRoom("vip"))

	_, err := env.presence.SetTyping(ctx, "general", alice, true)
	require.NoError(t, err)

	require.NoError(t, env.presence.JoinRoom(ctx, c, "general"))
	require.NoError(t, env.presence.JoinRoom(ctx, c, "general"))
	assert.True(t, c.InRoom("general"))

	evs := events(t, c)
	require.Len(t, evs, 2)
	assert.Equal(t, realtime.EventTypingChanged, evs[0].Type)
	assert.Len(t, evs[0].TypingUsers, 1)

	require.NoError(t, env.presence.LeaveRoom(ctx, c, "general"))
	require.NoError(t, env.presence.LeaveRoom(ctx, c, "general"))
	assert.False(t, c.InRoom("general"))
}

func TestSetStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	device1 := env.connect(t, alice)
	device2 := env.connect(t, alice)
	watcher := env.connect(t, bob)
	events(t, device1)
	events(t, device2)

	err := env.presence.SetStatus(ctx, alice, "busy")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	require.NoError(t, env.presence.SetStatus(ctx, alice, models.StatusAway))

	for _, c := range []*realtime.Client{device1, device2, watcher} {
		evs := events(t, c)
		require.Len(t, evs, 1)
		assert.Equal(t, realtime.EventPresenceChanged, evs[0].Type)
		assert.Equal(t, models.StatusAway, evs[0].Status)
	}

	u, err := env.store.GetUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, u.Status)
}

func TestOnlineUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	carol := models.Principal{UserID: "u-carol", Username: "carol"}
	dave := models.Principal{UserID: "u-dave", Username: "dave"}
	erin := models.Principal{UserID: "u-erin", Username: "erin"}

	require.NoError(t, env.store.SetPresence(ctx, alice, models.StatusOnline, now.Add(-time.Hour)))
	require.NoError(t, env.store.SetPresence(ctx, bob, models.StatusOnline, now.Add(-time.Minute)))
	require.NoError(t, env.store.SetPresence(ctx, carol, models.StatusAway, now.Add(-4*time.Minute)))
	require.NoError(t, env.store.SetPresence(ctx, dave, models.StatusAway, now.Add(-6*time.Minute)))
	require.NoError(t, env.store.SetPresence(ctx, erin, models.StatusOffline, now))

	users, err := env.presence.OnlineUsers(ctx, "", 0)
	require.NoError(t, err)
	var ids []string
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{bob.UserID, carol.UserID, alice.UserID}, ids)

	users, err = env.presence.OnlineUsers(ctx, bob.UserID, 1)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, carol.UserID, users[0].ID)
}
