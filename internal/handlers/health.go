package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/realtime"
)

// Pinger is a dependency health probe.
type Pinger func(ctx context.Context) error

// Health reports dependency status and live connection counts.
type Health struct {
	hub    *realtime.Hub
	checks map[string]Pinger
}

func NewHealth(hub *realtime.Hub, checks map[string]Pinger) *Health {
	return &Health{hub: hub, checks: checks}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	conns, users := h.hub.Stats()
	writeJSON(w, status, envelope{
		"dependencies": deps,
		"connections":  conns,
		"online_users": users,
	})
}
