package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Broker routes envelopes to every instance's hub.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
}

// LocalBroker delivers straight to this process's hub. Used with a single instance.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(ctx context.Context, env Envelope) error {
	stamp(&env)
	b.hub.Dispatch(env)
	return nil
}

// RedisBroker publishes envelopes to Redis and dispatches whatever any
// instance published to the local hub.
//
// Channels:
// chat:room:{room_id}
// chat:user:{user_id}
// chat:all
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
}

const channelPattern = "chat:*"

func NewRedisBroker(client *redis.Client, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, hub: hub}
}

func channelFor(env Envelope) string {
	switch env.Scope {
	case ScopeRoom:
		return "chat:room:" + env.Target
	case ScopeUser:
		return "chat:user:" + env.Target
	default:
		return "chat:all"
	}
}

func stamp(env *Envelope) {
	if env.Event.Timestamp.IsZero() {
		env.Event.Timestamp = time.Now().UTC()
	}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	stamp(&env)
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channelFor(env), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", env.Event.Type, err)
	}
	return nil
}

// Run subscribes to every chat channel and dispatches until ctx is done,
// reconnecting with exponential backoff.
func (b *RedisBroker) Run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if b.receive(ctx) {
			backoff = time.Second
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// receive runs one subscription and reports whether it delivered anything.
func (b *RedisBroker) receive(ctx context.Context) bool {
	l := logger.L()
	pubsub := b.client.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	l.Info().Str("pattern", channelPattern).Msg("chat redis subscriber started")

	delivered := false
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.Error().Err(err).Msg("redis subscriber error")
			}
			return delivered
		}
		delivered = true

		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			l.Warn().Err(err).Str("channel", msg.Channel).Msg("failed to decode chat event")
			continue
		}
		b.hub.Dispatch(env)
	}
}
