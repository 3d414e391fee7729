package realtime

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnConfig holds WebSocket timing and sizing.
type ConnConfig struct {
	MaxMessageSize int64
	PongWait       time.Duration
	PingInterval   time.Duration
	WriteWait      time.Duration
	SendBuffer     int
}

func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		MaxMessageSize: 64 * 1024,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		WriteWait:      10 * time.Second,
		SendBuffer:     256,
	}
}

// Client is one WebSocket connection of an authenticated principal.
type Client struct {
	ID        string
	Principal models.Principal
	Send      chan []byte

	conn *websocket.Conn
	cfg  ConnConfig

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

// NewClient wraps conn. conn may be nil for connections driven by tests.
func NewClient(p models.Principal, conn *websocket.Conn, cfg ConnConfig) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConnConfig().SendBuffer
	}
	return &Client{
		ID:        uuid.NewString(),
		Principal: p,
		Send:      make(chan []byte, cfg.SendBuffer),
		conn:      conn,
		cfg:       cfg,
		rooms:     make(map[string]struct{}),
	}
}

// Rooms returns the rooms this connection has joined, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// InRoom reports whether the connection has joined roomID.
func (c *Client) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Enqueue queues data without blocking. It returns false if the queue is
// full or the client is closed.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// SendEvent encodes ev and queues it for this connection only.
func (c *Client) SendEvent(ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	return c.Enqueue(data)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump reads frames until the connection fails, handing each to handle.
// onClose runs exactly once when reading stops.
func (c *Client) ReadPump(handle func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := logger.L()
				l.Warn().Err(err).Str(logger.FieldConnID, c.ID).Str(logger.FieldUserID, c.Principal.UserID).Msg("websocket read error")
			}
			return
		}
		handle(c, message)
	}
}

// WritePump drains Send to the socket and keeps it alive with pings. It
// returns when Send is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
