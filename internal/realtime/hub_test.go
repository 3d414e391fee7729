package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(userID string) *Client {
	return NewClient(models.Principal{UserID: userID, Username: userID}, nil, ConnConfig{SendBuffer: 8})
}

// drain returns the event types queued for c without blocking.
func drain(c *Client) []string {
	var types []string
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return types
			}
			var ev Event
			if err := json.Unmarshal(data, &ev); err == nil {
				types = append(types, ev.Type)
			}
		default:
			return types
		}
	}
}

func TestHub_RegisterUnregisterCountsPerUser(t *testing.T) {
	h := NewHub()
	a1, a2, b := newTestClient("a"), newTestClient("a"), newTestClient("b")

	assert.Equal(t, 1, h.Register(a1))
	assert.Equal(t, 2, h.Register(a2))
	assert.Equal(t, 1, h.Register(b))

	h.JoinRoom(a1, "general")
	h.JoinRoom(a1, "quests")

	remaining, rooms, ok := h.Unregister(a1)
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, []string{"general", "quests"}, rooms)

	_, _, ok = h.Unregister(a1)
	assert.False(t, ok, "second unregister is a no-op")

	remaining, _, ok = h.Unregister(a2)
	require.True(t, ok)
	assert.Equal(t, 0, remaining)

	conns, users := h.Stats()
	assert.Equal(t, 1, conns)
	assert.Equal(t, 1, users)
	assert.False(t, a1.Enqueue([]byte("x")), "closed client rejects sends")
}

func TestHub_JoinLeaveIdempotent(t *testing.T) {
	h := NewHub()
	c := newTestClient("a")
	h.Register(c)

	assert.True(t, h.JoinRoom(c, "general"))
	assert.False(t, h.JoinRoom(c, "general"))
	assert.True(t, c.InRoom("general"))

	assert.True(t, h.LeaveRoom(c, "general"))
	assert.False(t, h.LeaveRoom(c, "general"))
	assert.False(t, h.LeaveRoom(c, "never-joined"))
	assert.False(t, c.InRoom("general"))
}

func TestHub_DispatchScopes(t *testing.T) {
	h := NewHub()
	a, b, c := newTestClient("a"), newTestClient("b"), newTestClient("c")
	for _, cl := range []*Client{a, b, c} {
		h.Register(cl)
	}
	h.JoinRoom(a, "general")
	h.JoinRoom(b, "general")

	tests := []struct {
		name  string
		env   Envelope
		wantA bool
		wantB bool
		wantC bool
	}{
		{"room", ToRoom("general", Event{Type: EventNewMessage}), true, true, false},
		{"room excluding sender", ToRoom("general", Event{Type: EventTypingChanged}).Excluding("a"), false, true, false},
		{"user", ToUser("c", Event{Type: EventPresenceChanged}), false, false, true},
		{"all excluding", ToAll(Event{Type: EventUserConnected}).Excluding("b"), true, false, true},
		{"unknown room", ToRoom("nowhere", Event{Type: EventNewMessage}), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.Dispatch(tt.env)
			assert.Equal(t, tt.wantA, len(drain(a)) == 1, "a")
			assert.Equal(t, tt.wantB, len(drain(b)) == 1, "b")
			assert.Equal(t, tt.wantC, len(drain(c)) == 1, "c")
		})
	}
}

func TestHub_FullQueueDropsEvent(t *testing.T) {
	h := NewHub()
	c := NewClient(models.Principal{UserID: "a"}, nil, ConnConfig{SendBuffer: 1})
	h.Register(c)

	h.Dispatch(ToUser("a", Event{Type: EventPong}))
	h.Dispatch(ToUser("a", Event{Type: EventPong}))
	assert.Len(t, drain(c), 1)
}

func TestEvent_TypingChangedAlwaysHasUsers(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventTypingChanged, RoomID: "general", Timestamp: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"typing_users":[]`)

	data, err = json.Marshal(Event{Type: EventPong})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "typing_users")
}
