package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pilab-dev/glass-analytics/analytics"
	"github.com/pilab-dev/glass-analytics/domain"
	"github.com/spf13/viper"
)

// Backends accepted by CACHE_BACKEND and SETTINGS_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Initial dashboard settings. Saved settings take precedence once a
	// persistent settings backend holds any.
	PropertyID         string        `mapstructure:"GA4_PROPERTY_ID"`
	ServiceAccountFile string        `mapstructure:"GA4_SERVICE_ACCOUNT_FILE"`
	ServiceAccountJSON string        `mapstructure:"GA4_SERVICE_ACCOUNT_JSON"`
	ClarityEmbedURL    string        `mapstructure:"CLARITY_EMBED_URL"`
	TokenURI           string        `mapstructure:"TOKEN_URI"`
	AnalyticsBaseURL   string        `mapstructure:"ANALYTICS_BASE_URL"`
	HTTPTimeout        time.Duration `mapstructure:"HTTP_TIMEOUT"`

	CacheBackend  string `mapstructure:"CACHE_BACKEND"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	SettingsBackend string `mapstructure:"SETTINGS_BACKEND"`
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDBName     string `mapstructure:"MONGO_DB_NAME"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/glass-analytics/")
	v.AddConfigPath("$HOME/.glass-analytics")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	// For nested env vars like PARENT.CHILD -> PARENT_CHILD
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file means defaults and env vars only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "glass-analytics")

	v.SetDefault("GA4_PROPERTY_ID", "")
	v.SetDefault("GA4_SERVICE_ACCOUNT_FILE", "")
	v.SetDefault("GA4_SERVICE_ACCOUNT_JSON", "")
	v.SetDefault("CLARITY_EMBED_URL", "")
	v.SetDefault("TOKEN_URI", domain.GoogleTokenURI)
	v.SetDefault("ANALYTICS_BASE_URL", analytics.DefaultBaseURL)
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)

	v.SetDefault("CACHE_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "glass")

	v.SetDefault("SETTINGS_BACKEND", BackendMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "glass_analytics")
}

// Validate checks the backend selections.
func (c *ServerConfig) Validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}

	switch c.SettingsBackend {
	case BackendMemory, BackendMongo:
	default:
		return fmt.Errorf("unsupported SETTINGS_BACKEND %q", c.SettingsBackend)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}

	return nil
}

// InitialSettings returns the dashboard settings seeded from configuration.
// GA4_SERVICE_ACCOUNT_FILE wins over GA4_SERVICE_ACCOUNT_JSON.
func (c *ServerConfig) InitialSettings() (domain.Settings, error) {
	s := domain.Settings{
		PropertyID:         strings.TrimSpace(c.PropertyID),
		ServiceAccountJSON: c.ServiceAccountJSON,
		ClarityEmbedURL:    c.ClarityEmbedURL,
	}

	if c.ServiceAccountFile != "" {
		raw, err := os.ReadFile(c.ServiceAccountFile)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("reading service account file: %w", err)
		}
		s.ServiceAccountJSON = string(raw)
	}

	if !domain.ValidServiceAccountJSON(s.ServiceAccountJSON) {
		return domain.Settings{}, errors.New("service account JSON is not a valid JSON object")
	}

	return s, nil
}
