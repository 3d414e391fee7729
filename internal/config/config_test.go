package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("FRONTEND_URL", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, BrokerLocal, cfg.Broker)
	assert.Equal(t, 5*time.Second, cfg.TypingWindow)
	assert.Equal(t, 5*time.Minute, cfg.AwayWindow)
	assert.Equal(t, 24*time.Hour, cfg.MessageTTL)
	assert.Equal(t, []string{"general", "airdrops", "quests"}, cfg.DefaultRooms)
	assert.Equal(t, []string{defaultOrigin}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.UsesRedis())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("TYPING_BACKEND", "redis")
	t.Setenv("TYPING_WINDOW", "3s")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://www.example.com")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 3*time.Second, cfg.TypingWindow)
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, []string{"https://app.example.com", "https://www.example.com"}, cfg.AllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("unknown broker", func(t *testing.T) {
		t.Setenv("BROKER", "kafka")
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("TYPING_WINDOW", "soon")
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
	t.Run("production without secret", func(t *testing.T) {
		t.Setenv("ENV", "production")
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
}
