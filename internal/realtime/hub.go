package realtime

import (
	"encoding/json"
	"sync"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
)

type roomGroup struct {
	mu      sync.RWMutex
	members map[string]*Client // client ID -> client
}

// Hub is this instance's registry of live connections, per-user private
// channels and per-room subscription groups.
//
// Lock order: Hub.mu and Hub.groupsMu are never held while a group's mu is
// being acquired for delivery.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // client ID -> client
	users   map[string]map[string]*Client // user ID -> client ID -> client

	groupsMu sync.Mutex
	groups   map[string]*roomGroup
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]*Client),
		groups:  make(map[string]*roomGroup),
	}
}

// Register adds c and returns how many connections its user now has.
func (h *Hub) Register(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	conns, ok := h.users[c.Principal.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.users[c.Principal.UserID] = conns
	}
	conns[c.ID] = c
	return len(conns)
}

// Unregister removes c from the registry and from every room group, closes its
// send queue, and reports the user's remaining connection count and the rooms
// c had joined. ok is false when c was already gone.
func (h *Hub) Unregister(c *Client) (remaining int, rooms []string, ok bool) {
	h.mu.Lock()
	if _, ok = h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		if conns := h.users[c.Principal.UserID]; conns != nil {
			delete(conns, c.ID)
			remaining = len(conns)
			if remaining == 0 {
				delete(h.users, c.Principal.UserID)
			}
		}
	} else {
		remaining = len(h.users[c.Principal.UserID])
	}
	h.mu.Unlock()

	if !ok {
		return remaining, nil, false
	}

	rooms = c.Rooms()
	for _, roomID := range rooms {
		h.LeaveRoom(c, roomID)
	}
	c.close()
	return remaining, rooms, true
}

func (h *Hub) group(roomID string, create bool) *roomGroup {
	h.groupsMu.Lock()
	defer h.groupsMu.Unlock()
	g, ok := h.groups[roomID]
	if !ok && create {
		g = &roomGroup{members: make(map[string]*Client)}
		h.groups[roomID] = g
	}
	return g
}

// JoinRoom subscribes c to roomID. Joining twice is a no-op.
func (h *Hub) JoinRoom(c *Client, roomID string) bool {
	g := h.group(roomID, true)
	g.mu.Lock()
	_, already := g.members[c.ID]
	g.members[c.ID] = c
	g.mu.Unlock()
	c.addRoom(roomID)
	return !already
}

// LeaveRoom unsubscribes c from roomID. Leaving a room never joined is a no-op.
func (h *Hub) LeaveRoom(c *Client, roomID string) bool {
	c.removeRoom(roomID)
	g := h.group(roomID, false)
	if g == nil {
		return false
	}
	g.mu.Lock()
	_, was := g.members[c.ID]
	delete(g.members, c.ID)
	g.mu.Unlock()
	return was
}

// UserConnections returns how many live connections userID has here.
func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Stats reports connection and user counts for health checks.
func (h *Hub) Stats() (connections, users int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.users)
}

// Dispatch delivers env to the matching local connections. Delivery is best
// effort: a client whose queue is full misses the event.
func (h *Hub) Dispatch(env Envelope) {
	data, err := json.Marshal(env.Event)
	if err != nil {
		l := logger.L()
		l.Error().Err(err).Str("event", env.Event.Type).Msg("failed to encode event")
		return
	}

	for _, c := range h.targets(env) {
		if c.Principal.UserID == env.ExcludeUserID && env.ExcludeUserID != "" {
			continue
		}
		if !c.Enqueue(data) {
			l := logger.L()
			l.Warn().Str(logger.FieldConnID, c.ID).Str(logger.FieldUserID, c.Principal.UserID).
				Str("event", env.Event.Type).Msg("send queue full, dropping event")
		}
	}
}

func (h *Hub) targets(env Envelope) []*Client {
	switch env.Scope {
	case ScopeRoom:
		g := h.group(env.Target, false)
		if g == nil {
			return nil
		}
		g.mu.RLock()
		defer g.mu.RUnlock()
		return collect(g.members)
	case ScopeUser:
		h.mu.RLock()
		defer h.mu.RUnlock()
		return collect(h.users[env.Target])
	case ScopeAll:
		h.mu.RLock()
		defer h.mu.RUnlock()
		return collect(h.clients)
	}
	return nil
}

func collect(m map[string]*Client) []*Client {
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
