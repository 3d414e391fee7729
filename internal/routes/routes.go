package routes

import (
	"github.com/AnshRaj112/airdrop-chat-backend/internal/handlers"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Handlers struct {
	Chat   *handlers.ChatHandler
	Socket *handlers.ChatSocket
	Health *handlers.Health
}

type Options struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	Resolver       middleware.Resolver
	MessageLimiter *middleware.KeyedLimiter

	// Production enables security headers, the host check and the global
	// per-IP limit.
	Production    bool
	AllowedHost   string
	GlobalLimiter *middleware.KeyedLimiter
}

// NewRouter builds the full middleware stack and mounts every route.
func NewRouter(opts Options, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(logger.HTTPMiddleware(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))

	if opts.Production && opts.GlobalLimiter != nil {
		for _, mw := range middleware.ProductionSecurity(opts.AllowedHost, opts.GlobalLimiter) {
			r.Use(mw)
		}
	}

	SetupRoutes(r, opts, h)
	return r
}

func SetupRoutes(r chi.Router, opts Options, h Handlers) {
	// Health check (no auth)
	r.Method("GET", "/health", h.Health)

	// WebSocket gateway; authenticates the token itself before upgrading
	r.Method("GET", "/ws", h.Socket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(opts.Resolver))

		r.Get("/users/online", h.Chat.OnlineUsers)

		r.Get("/rooms", h.Chat.ListRooms)
		r.Post("/rooms", h.Chat.CreateRoom)

		r.Route("/rooms/{roomId}", func(r chi.Router) {
			// Polling fallback: messages after ?lastMessageId plus the typing set
			r.Get("/", h.Chat.PollRoom)
			r.Post("/typing", h.Chat.SetTyping)

			r.Group(func(r chi.Router) {
				if opts.MessageLimiter != nil {
					r.Use(middleware.MessageRateLimit(opts.MessageLimiter))
				}
				r.Get("/messages", h.Chat.ListMessages)
				r.Post("/messages", h.Chat.PostMessage)
				r.Patch("/messages/{messageId}", h.Chat.UpdateMessage)
				r.Post("/messages/{messageId}/reactions", h.Chat.ToggleReaction)
			})
		})
	})
}
