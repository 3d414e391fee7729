package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store"
)

const maxRoomNameLength = 64

// DefaultRoomNames are created at start-up when no list is configured.
var DefaultRoomNames = []string{"general", "airdrops", "quests"}

type CreateRoomInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Topic       string   `json:"topic,omitempty"`
	IsPublic    bool     `json:"is_public"`
	Members     []string `json:"members,omitempty"`
}

// RoomService manages chat rooms. Rooms are never deleted here.
type RoomService struct {
	rooms store.RoomStore
	now   func() time.Time
}

func NewRoomService(rooms store.RoomStore) *RoomService {
	return &RoomService{rooms: rooms, now: time.Now}
}

// EnsureDefaultRooms creates the public rooms in names that do not exist yet.
func (s *RoomService) EnsureDefaultRooms(ctx context.Context, names []string) error {
	if len(names) == 0 {
		names = DefaultRoomNames
	}
	log := logger.Ctx(ctx)
	now := s.now().UTC()
	for _, name := range names {
		id := RoomSlug(name)
		if id == "" {
			continue
		}
		room := &models.ChatRoom{
			ID:        id,
			Name:      displayName(name),
			IsPublic:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.rooms.EnsureRoom(ctx, room); err != nil {
			return storeErr("ensure room "+id, err)
		}
		log.Debug().Str(logger.FieldRoomID, id).Msg("default room ready")
	}
	return nil
}

// CreateRoom is limited to admins. Private rooms always include their creator.
func (s *RoomService) CreateRoom(ctx context.Context, p models.Principal, in CreateRoomInput) (*models.ChatRoom, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("create room: %w", ErrForbidden)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len([]rune(name)) > maxRoomNameLength {
		return nil, invalid("room name must be 1-%d characters", maxRoomNameLength)
	}
	id := RoomSlug(name)
	if id == "" {
		return nil, invalid("room name must contain letters or digits")
	}

	now := s.now().UTC()
	room := &models.ChatRoom{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Topic:       strings.TrimSpace(in.Topic),
		IsPublic:    in.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !in.IsPublic {
		room.Members = uniqueMembers(append([]string{p.UserID}, in.Members...))
	}

	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("room %q already exists", id)
		}
		return nil, storeErr("create room", err)
	}
	return room, nil
}

// ListRooms returns the rooms p may read, most recently active first.
func (s *RoomService) ListRooms(ctx context.Context, p models.Principal) ([]models.ChatRoom, error) {
	rooms, err := s.rooms.ListRooms(ctx, p.UserID)
	if err != nil {
		return nil, storeErr("list rooms", err)
	}
	if rooms == nil {
		rooms = []models.ChatRoom{}
	}
	return rooms, nil
}

// GetRoom returns the room if p may read it.
func (s *RoomService) GetRoom(ctx context.Context, p models.Principal, roomID string) (*models.ChatRoom, error) {
	return authorizeRoom(ctx, s.rooms, roomID, p)
}

// authorizeRoom loads roomID and checks p may read it.
func authorizeRoom(ctx context.Context, rooms store.RoomStore, roomID string, p models.Principal) (*models.ChatRoom, error) {
	if roomID == "" {
		return nil, invalid("room id is required")
	}
	room, err := rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, storeErr("room "+roomID, err)
	}
	if !room.CanRead(p.UserID) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrForbidden)
	}
	return room, nil
}

// RoomSlug turns a display name into a room ID: "Airdrop Hunters!" -> "airdrop-hunters".
func RoomSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func uniqueMembers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
