package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilab-dev/glass-analytics/analytics"
	"github.com/pilab-dev/glass-analytics/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, BackendMemory, cfg.CacheBackend)
	assert.Equal(t, BackendMemory, cfg.SettingsBackend)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, domain.GoogleTokenURI, cfg.TokenURI)
	assert.Equal(t, analytics.DefaultBaseURL, cfg.AnalyticsBaseURL)
	assert.Equal(t, "glass", cfg.RedisPrefix)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("GA4_PROPERTY_ID", "123456")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "123456", cfg.PropertyID)
	assert.Equal(t, BackendRedis, cfg.CacheBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SETTINGS_BACKEND", "etcd")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestInitialSettings(t *testing.T) {
	t.Run("inline JSON", func(t *testing.T) {
		cfg := &ServerConfig{PropertyID: " 42 ", ServiceAccountJSON: `{"client_email":"a@b.c"}`, ClarityEmbedURL: "https://c"}

		s, err := cfg.InitialSettings()
		require.NoError(t, err)
		assert.Equal(t, "42", s.PropertyID)
		assert.Equal(t, `{"client_email":"a@b.c"}`, s.ServiceAccountJSON)
		assert.Equal(t, "https://c", s.ClarityEmbedURL)
	})

	t.Run("file wins over inline JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"from":"file"}`), 0o600))

		cfg := &ServerConfig{ServiceAccountFile: path, ServiceAccountJSON: `{"from":"env"}`}
		s, err := cfg.InitialSettings()
		require.NoError(t, err)
		assert.Equal(t, `{"from":"file"}`, s.ServiceAccountJSON)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := &ServerConfig{ServiceAccountFile: filepath.Join(t.TempDir(), "nope.json")}
		_, err := cfg.InitialSettings()
		assert.Error(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		cfg := &ServerConfig{ServiceAccountJSON: "[1,2"}
		_, err := cfg.InitialSettings()
		assert.Error(t, err)
	})
}
