package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	Environment    string   // ENV: production, development, etc.
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	AllowedHost    string   // production host check; empty disables it

	MongoURI string
	RedisURI string

	JWTSecret string
	JWTIssuer string

	StoreDriver   string // mongo | memory
	Broker        string // local | redis
	TypingBackend string // memory | redis

	TypingWindow time.Duration
	AwayWindow   time.Duration
	MessageTTL   time.Duration
	DefaultRooms []string

	MessageRateRPS   float64
	MessageRateBurst int

	LogLevel  string
	LogPretty bool
}

const (
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
	BrokerLocal   = "local"
	BrokerRedis   = "redis"
	TypingMemory  = "memory"
	TypingRedis   = "redis"
	devJWTSecret  = "dev-secret-change-in-production"
	defaultOrigin = "http://localhost:3000"
)

// Load reads config.yaml (optional) from configPath and the environment.
// Environment variables always win.
func Load(configPath string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017/airdrops")
	v.SetDefault("REDIS_URI", "redis://localhost:6379/0")
	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("ALLOWED_HOST", "")
	v.SetDefault("STORE_DRIVER", StoreMongo)
	v.SetDefault("BROKER", BrokerLocal)
	v.SetDefault("TYPING_BACKEND", TypingMemory)
	v.SetDefault("TYPING_WINDOW", "5s")
	v.SetDefault("AWAY_WINDOW", "5m")
	v.SetDefault("MESSAGE_TTL", "24h")
	v.SetDefault("DEFAULT_ROOMS", "general,airdrops,quests")
	v.SetDefault("MESSAGE_RATE_RPS", 1.0)
	v.SetDefault("MESSAGE_RATE_BURST", 10)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:             v.GetString("PORT"),
		Environment:      strings.ToLower(strings.TrimSpace(v.GetString("ENV"))),
		AllowedHost:      strings.TrimSpace(v.GetString("ALLOWED_HOST")),
		MongoURI:         firstNonEmpty(v.GetString("MONGODB_URI"), v.GetString("MONGO_URI")),
		RedisURI:         v.GetString("REDIS_URI"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTIssuer:        v.GetString("JWT_ISSUER"),
		StoreDriver:      strings.ToLower(v.GetString("STORE_DRIVER")),
		Broker:           strings.ToLower(v.GetString("BROKER")),
		TypingBackend:    strings.ToLower(v.GetString("TYPING_BACKEND")),
		DefaultRooms:     splitList(v.GetString("DEFAULT_ROOMS")),
		MessageRateRPS:   v.GetFloat64("MESSAGE_RATE_RPS"),
		MessageRateBurst: v.GetInt("MESSAGE_RATE_BURST"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogPretty:        v.GetBool("LOG_PRETTY"),
	}

	var err error
	if cfg.TypingWindow, err = duration(v, "TYPING_WINDOW"); err != nil {
		return nil, err
	}
	if cfg.AwayWindow, err = duration(v, "AWAY_WINDOW"); err != nil {
		return nil, err
	}
	if cfg.MessageTTL, err = duration(v, "MESSAGE_TTL"); err != nil {
		return nil, err
	}

	// CORS: allow multiple origins so the production dashboard and previews both work
	cfg.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		for _, u := range []string{v.GetString("FRONTEND_URL"), v.GetString("FRONTEND_URL_2")} {
			if u = strings.TrimSpace(u); u != "" && !containsOrigin(cfg.AllowedOrigins, u) {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, u)
			}
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultOrigin}
	}

	return cfg, cfg.Validate()
}

// Validate rejects combinations that would silently misbehave.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.Broker {
	case BrokerLocal, BrokerRedis:
	default:
		return fmt.Errorf("config: unknown BROKER %q", c.Broker)
	}
	switch c.TypingBackend {
	case TypingMemory, TypingRedis:
	default:
		return fmt.Errorf("config: unknown TYPING_BACKEND %q", c.TypingBackend)
	}
	if c.TypingWindow <= 0 {
		return fmt.Errorf("config: TYPING_WINDOW must be positive")
	}
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == devJWTSecret) {
		return fmt.Errorf("config: JWT_SECRET must be set in production")
	}
	return nil
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Broker == BrokerRedis || c.TypingBackend == TypingRedis
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
