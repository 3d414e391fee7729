package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBrokerDispatches(t *testing.T) {
	h := NewHub()
	c := newTestClient("a")
	h.Register(c)

	require.NoError(t, NewLocalBroker(h).Publish(context.Background(), ToUser("a", Event{Type: EventPong})))
	assert.Equal(t, []string{EventPong}, drain(c))
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "chat:room:general", channelFor(ToRoom("general", Event{})))
	assert.Equal(t, "chat:user:u1", channelFor(ToUser("u1", Event{})))
	assert.Equal(t, "chat:all", channelFor(ToAll(Event{})))
}

func TestRedisBrokerFansOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rc.Close() })
		return rc
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// two instances sharing one Redis
	hubA, hubB := NewHub(), NewHub()
	brokerA := NewRedisBroker(newClient(), hubA)
	brokerB := NewRedisBroker(newClient(), hubB)
	go brokerA.Run(ctx)
	go brokerB.Run(ctx)

	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 2 }, 2*time.Second, 10*time.Millisecond)

	onA, onB := newTestClient("a"), newTestClient("b")
	hubA.Register(onA)
	hubB.Register(onB)
	hubA.JoinRoom(onA, "general")
	hubB.JoinRoom(onB, "general")

	require.NoError(t, brokerA.Publish(ctx, ToRoom("general", Event{Type: EventNewMessage, RoomID: "general"}).Excluding("a")))

	select {
	case data := <-onB.Send:
		assert.Contains(t, string(data), EventNewMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered to the other instance")
	}
	assert.Empty(t, drain(onA))
}
