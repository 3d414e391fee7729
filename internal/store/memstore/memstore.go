// Package memstore is an in-process implementation of store.Store.
// It is used by tests and by STORE_DRIVER=memory for local development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	rooms    map[string]*models.ChatRoom
	messages map[primitive.ObjectID]*models.ChatMessage

	ttl time.Duration
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMessageTTL overrides the message lifetime.
func WithMessageTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func New(opts ...Option) *Store {
	s := &Store{
		users:    make(map[string]*models.User),
		rooms:    make(map[string]*models.ChatRoom),
		messages: make(map[primitive.ObjectID]*models.ChatMessage),
		ttl:      store.DefaultMessageTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) EnsureIndexes(ctx context.Context) error { return nil }

func (s *Store) Close(ctx context.Context) error { return nil }

// StartExpirySweep removes expired messages every interval until ctx is done.
// It stands in for the Mongo TTL monitor.
func (s *Store) StartExpirySweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpired()
			}
		}
	}()
}

// SweepExpired hard-deletes messages older than the TTL and returns how many went.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.messages {
		if s.expired(m) {
			delete(s.messages, id)
			n++
		}
	}
	return n
}

func (s *Store) expired(m *models.ChatMessage) bool {
	return !s.now().Before(m.CreatedAt.Add(s.ttl))
}

// --- users ---

func (s *Store) SetPresence(ctx context.Context, p models.Principal, status models.PresenceStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[p.UserID]
	if !ok {
		u = &models.User{ID: p.UserID, Role: p.Role, CreatedAt: at}
		if u.Role == "" {
			u.Role = models.RoleUser
		}
		s.users[p.UserID] = u
	}
	if p.Username != "" {
		u.Username = p.Username
	}
	u.Status = status
	u.LastActive = at
	u.UpdatedAt = at
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListOnline(ctx context.Context, excluding string, awayCutoff time.Time, limit int) ([]models.User, error) {
	s.mu.RLock()
	var out []models.User
	for _, u := range s.users {
		if u.ID == excluding {
			continue
		}
		switch {
		case u.Status == models.StatusOnline:
		case u.Status == models.StatusAway && !u.LastActive.Before(awayCutoff):
		default:
			continue
		}
		out = append(out, *u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].LastActive.After(out[j].LastActive)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- rooms ---

func (s *Store) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return store.ErrDuplicate
	}
	s.rooms[room.ID] = copyRoom(room)
	return nil
}

func (s *Store) EnsureRoom(ctx context.Context, room *models.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		s.rooms[room.ID] = copyRoom(room)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRoom(r), nil
}

func (s *Store) ListRooms(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	s.mu.RLock()
	out := make([]models.ChatRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.CanRead(userID) {
			out = append(out, *copyRoom(r))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) TouchRoom(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return store.ErrNotFound
	}
	r.UpdatedAt = at
	return nil
}

// --- messages ---

func (s *Store) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectIDFromTimestamp(msg.CreatedAt)
	}
	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id primitive.ObjectID) (*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.live(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *Store) live(id primitive.ObjectID) (*models.ChatMessage, bool) {
	m, ok := s.messages[id]
	if !ok || s.expired(m) {
		return nil, false
	}
	return m, true
}

func (s *Store) roomMessages(roomID string, keep func(*models.ChatMessage) bool) []*models.ChatMessage {
	var out []*models.ChatMessage
	for _, m := range s.messages {
		if m.RoomID != roomID || s.expired(m) || !keep(m) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

func before(a, b *models.ChatMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.Hex() < b.ID.Hex()
}

func (s *Store) ListMessages(ctx context.Context, roomID string, beforeTime *time.Time, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.roomMessages(roomID, func(m *models.ChatMessage) bool {
		return beforeTime == nil || m.CreatedAt.Before(*beforeTime)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return copyAll(msgs), nil
}

func (s *Store) ListMessagesAfter(ctx context.Context, roomID string, after time.Time, afterID primitive.ObjectID, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor := &models.ChatMessage{ID: afterID, CreatedAt: after}
	msgs := s.roomMessages(roomID, func(m *models.ChatMessage) bool {
		return before(cursor, m)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return copyAll(msgs), nil
}

func (s *Store) mutate(id primitive.ObjectID, fn func(m *models.ChatMessage)) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.live(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	fn(m)
	return copyMessage(m), nil
}

func (s *Store) EditContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) (*models.ChatMessage, error) {
	return s.mutate(id, func(m *models.ChatMessage) {
		m.Content = content
		m.IsEdited = true
		m.UpdatedAt = at
	})
}

func (s *Store) SoftDelete(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.ChatMessage, error) {
	return s.mutate(id, func(m *models.ChatMessage) {
		m.Content = models.DeletedMessageContent
		m.Attachments = []models.Attachment{}
		m.IsDeleted = true
		m.UpdatedAt = at
	})
}

func (s *Store) ToggleReaction(ctx context.Context, id primitive.ObjectID, r models.Reaction) (*models.ChatMessage, error) {
	return s.mutate(id, func(m *models.ChatMessage) {
		kept := make([]models.Reaction, 0, len(m.Reactions)+1)
		removed := false
		for _, existing := range m.Reactions {
			if existing.UserID == r.UserID && existing.Type == r.Type {
				removed = true
				continue
			}
			kept = append(kept, existing)
		}
		if !removed {
			kept = append(kept, r)
		}
		m.Reactions = kept
		m.UpdatedAt = r.Timestamp
	})
}

func (s *Store) MarkRead(ctx context.Context, ids []primitive.ObjectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		m, ok := s.live(id)
		if !ok || m.SenderID == userID {
			continue
		}
		if !m.IsReadBy(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
		m.DeliveryStatus = models.DeliveryStatusRead
	}
	return nil
}

func copyRoom(r *models.ChatRoom) *models.ChatRoom {
	cp := *r
	cp.Members = append([]string(nil), r.Members...)
	return &cp
}

func copyMessage(m *models.ChatMessage) *models.ChatMessage {
	cp := *m
	cp.Attachments = append([]models.Attachment{}, m.Attachments...)
	cp.Reactions = append([]models.Reaction{}, m.Reactions...)
	cp.ReadBy = append([]string{}, m.ReadBy...)
	if m.ReplyTo != nil {
		rp := *m.ReplyTo
		cp.ReplyTo = &rp
	}
	return &cp
}

func copyAll(msgs []*models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, *copyMessage(m))
	}
	return out
}
