package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultTypingWindow is how long a typing entry stays visible without a refresh.
const DefaultTypingWindow = 5 * time.Second

// TypingStore holds the ephemeral "who is typing" sets, one per room.
// List never returns entries older than the store's window.
type TypingStore interface {
	Set(ctx context.Context, roomID string, entry models.TypingEntry) error
	Remove(ctx context.Context, roomID, userID string) error
	List(ctx context.Context, roomID string, now time.Time) ([]models.TypingEntry, error)
}

func stale(e models.TypingEntry, now time.Time, window time.Duration) bool {
	return now.Sub(e.Timestamp) >= window
}

func sortTyping(entries []models.TypingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].UserID < entries[j].UserID
	})
}

// --- in-process ---

type typingShard struct {
	mu      sync.Mutex
	entries map[string]models.TypingEntry
}

// MemoryTypingStore keeps typing entries in process, one lock per room.
type MemoryTypingStore struct {
	window time.Duration

	mu     sync.Mutex // guards shards map only
	shards map[string]*typingShard
}

func NewMemoryTypingStore(window time.Duration) *MemoryTypingStore {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &MemoryTypingStore{window: window, shards: make(map[string]*typingShard)}
}

var _ TypingStore = (*MemoryTypingStore)(nil)

func (s *MemoryTypingStore) shard(roomID string) *typingShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shards[roomID]
}

// Set inserts while s.mu is held so Sweep cannot drop the shard in between.
func (s *MemoryTypingStore) Set(ctx context.Context, roomID string, entry models.TypingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[roomID]
	if !ok {
		sh = &typingShard{entries: make(map[string]models.TypingEntry)}
		s.shards[roomID] = sh
	}
	sh.mu.Lock()
	sh.entries[entry.UserID] = entry
	sh.mu.Unlock()
	return nil
}

func (s *MemoryTypingStore) Remove(ctx context.Context, roomID, userID string) error {
	sh := s.shard(roomID)
	if sh == nil {
		return nil
	}
	sh.mu.Lock()
	delete(sh.entries, userID)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryTypingStore) List(ctx context.Context, roomID string, now time.Time) ([]models.TypingEntry, error) {
	sh := s.shard(roomID)
	if sh == nil {
		return []models.TypingEntry{}, nil
	}
	sh.mu.Lock()
	out := make([]models.TypingEntry, 0, len(sh.entries))
	for id, e := range sh.entries {
		if stale(e, now, s.window) {
			delete(sh.entries, id)
			continue
		}
		out = append(out, e)
	}
	sh.mu.Unlock()
	sortTyping(out)
	return out, nil
}

// Sweep prunes stale entries and drops empty rooms. Returns entries removed.
func (s *MemoryTypingStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for roomID, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			if stale(e, now, s.window) {
				delete(sh.entries, id)
				removed++
			}
		}
		empty := len(sh.entries) == 0
		sh.mu.Unlock()
		if empty {
			delete(s.shards, roomID)
		}
	}
	return removed
}

// StartSweep runs Sweep every interval until ctx is done.
func (s *MemoryTypingStore) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}

// --- redis ---

// RedisTypingStore shares typing sets across instances.
//
// Key layout:
// typing:room:{room_id}   HASH user_id -> JSON TypingEntry
type RedisTypingStore struct {
	client *redis.Client
	window time.Duration
}

func NewRedisTypingStore(client *redis.Client, window time.Duration) *RedisTypingStore {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &RedisTypingStore{client: client, window: window}
}

var _ TypingStore = (*RedisTypingStore)(nil)

func typingKey(roomID string) string {
	return fmt.Sprintf("typing:room:%s", roomID)
}

func (s *RedisTypingStore) Set(ctx context.Context, roomID string, entry models.TypingEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := typingKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, entry.UserID, data)
	// The whole hash goes away once nobody has refreshed it for two windows.
	pipe.Expire(ctx, key, 2*s.window)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisTypingStore) Remove(ctx context.Context, roomID, userID string) error {
	return s.client.HDel(ctx, typingKey(roomID), userID).Err()
}

func (s *RedisTypingStore) List(ctx context.Context, roomID string, now time.Time) ([]models.TypingEntry, error) {
	key := typingKey(roomID)
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.TypingEntry, 0, len(raw))
	var expired []string
	for field, val := range raw {
		var e models.TypingEntry
		if err := json.Unmarshal([]byte(val), &e); err != nil || stale(e, now, s.window) {
			expired = append(expired, field)
			continue
		}
		out = append(out, e)
	}
	if len(expired) > 0 {
		if err := s.client.HDel(ctx, key, expired...).Err(); err != nil {
			return nil, err
		}
	}
	sortTyping(out)
	return out, nil
}
