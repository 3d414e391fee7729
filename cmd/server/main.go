package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/config"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/database"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/handlers"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/middleware"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/realtime"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/routes"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/services"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store/memstore"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store/mongostore"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	expirySweepInterval = time.Minute
	shutdownTimeout     = 10 * time.Second

	globalRateLimitRPS   = 1
	globalRateLimitBurst = 10
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		l := logger.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, ServiceName: "airdrop-chat"})
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Pinger{}

	st, err := openStore(ctx, cfg, checks)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	if err := st.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	} else {
		log.Info().Msg("indexes ensured")
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		log.Info().Str("uri", database.MaskURI(cfg.RedisURI)).Msg("connecting to redis")
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURI)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	hub := realtime.NewHub()

	var broker realtime.Broker
	switch cfg.Broker {
	case config.BrokerRedis:
		rb := realtime.NewRedisBroker(redisClient, hub)
		go rb.Run(ctx)
		broker = rb
	default:
		broker = realtime.NewLocalBroker(hub)
	}

	var typing services.TypingStore
	switch cfg.TypingBackend {
	case config.TypingRedis:
		typing = services.NewRedisTypingStore(redisClient, cfg.TypingWindow)
	default:
		mem := services.NewMemoryTypingStore(cfg.TypingWindow)
		mem.StartSweep(ctx, cfg.TypingWindow)
		typing = mem
	}

	resolver := services.NewSessionResolver(cfg.JWTSecret, cfg.JWTIssuer)
	presence := services.NewPresenceCoordinator(st, st, typing, hub, broker, services.WithAwayWindow(cfg.AwayWindow))
	messaging := services.NewMessagingService(st, st, broker)
	rooms := services.NewRoomService(st)

	if err := rooms.EnsureDefaultRooms(ctx, cfg.DefaultRooms); err != nil {
		log.Fatal().Err(err).Msg("failed to create default rooms")
	}
	log.Info().Strs("rooms", cfg.DefaultRooms).Msg("default rooms ready")

	messageLimiter := middleware.NewKeyedLimiter(rate.Limit(cfg.MessageRateRPS), cfg.MessageRateBurst)
	messageLimiter.StartCleanup(ctx)
	globalLimiter := middleware.NewKeyedLimiter(rate.Limit(globalRateLimitRPS), globalRateLimitBurst)
	globalLimiter.StartCleanup(ctx)

	router := routes.NewRouter(routes.Options{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		Resolver:       resolver,
		MessageLimiter: messageLimiter,
		Production:     cfg.IsProduction(),
		AllowedHost:    cfg.AllowedHost,
		GlobalLimiter:  globalLimiter,
	}, routes.Handlers{
		Chat:   handlers.NewChatHandler(messaging, presence, rooms),
		Socket: handlers.NewChatSocket(resolver, presence, cfg.AllowedOrigins, realtime.DefaultConnConfig()),
		Health: handlers.NewHealth(hub, checks),
	})

	if cfg.IsProduction() {
		log.Info().Msg("production security enabled (security headers, host check, per-IP rate limiting)")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Str("broker", cfg.Broker).
			Str("typing", cfg.TypingBackend).Msg("airdrop chat backend running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore connects the configured persistence driver and registers its health check.
func openStore(ctx context.Context, cfg *config.Config, checks map[string]handlers.Pinger) (store.Store, error) {
	log := logger.L()

	if cfg.StoreDriver == config.StoreMemory {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		mem := memstore.New(memstore.WithMessageTTL(cfg.MessageTTL))
		mem.StartExpirySweep(ctx, expirySweepInterval)
		return mem, nil
	}

	client, db, err := database.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	ms := mongostore.New(client, db, cfg.MessageTTL)
	checks["mongodb"] = ms.Ping
	return ms, nil
}
