// Package config loads the relay's configuration in stages: YAML, then
// environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Upstream types.
const (
	UpstreamRedis  = "redis"
	UpstreamPubsub = "pubsub"
)

// RunModeLocal renders logs for a terminal instead of as JSON.
const RunModeLocal = "local"

type WebsocketConfig struct {
	Path           string
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SubscribeRate  float64
	SubscribeBurst int
	LookupTimeout  time.Duration
}

type UpstreamConfig struct {
	Type           string
	Redis          YamlRedisConfig
	Pubsub         YamlPubsubConfig
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ReadyTimeout   time.Duration
	StableStream   time.Duration
}

type StoreConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SessionTable    string
	FollowTable     string
	CheckExpiry     bool
	CreateSchema    bool
}

type SessionConfig struct {
	Serializer string
	SecretKey  string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AppConfig is the canonical, validated configuration object used throughout the application.
// It is created by NewConfigFromYaml (Stage 1) and finalized by
// UpdateConfigWithEnvOverrides (Stage 2).
type AppConfig struct {
	RunMode       string
	WebSocketPort string
	Websocket     WebsocketConfig
	Upstream      UpstreamConfig
	Store         StoreConfig
	Session       SessionConfig
	Log           LogConfig
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Websocket: WebsocketConfig{
			Path:           "/feed",
			SendBuffer:     64,
			PingInterval:   25 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			MaxMessageSize: 4096,
			SubscribeRate:  1,
			SubscribeBurst: 5,
		},
		Upstream: UpstreamConfig{
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			StableStream:   10 * time.Second,
		},
		Store: StoreConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			SessionTable:    "django_session",
			FollowTable:     "relationship_following",
			CheckExpiry:     true,
		},
		Session: SessionConfig{Serializer: "pickle"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  25,
			MaxBackups: 10,
			MaxAgeDays: 14,
		},
	}
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without replacing variables that are already set. A missing
// default file is not an error.
func LoadEnvFile(path string, logger zerolog.Logger) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("No .env file found, skipping")
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	logger.Debug().Str("path", path).Msg("Loaded env file")
	return nil
}

// UpdateConfigWithEnvOverrides takes the base configuration (created from YAML)
// and completes it by applying environment variables and final validation.
// This function completes "Stage 2" of configuration loading.
func UpdateConfigWithEnvOverrides(cfg *AppConfig, logger zerolog.Logger) (*AppConfig, error) {
	logger.Debug().Msg("Applying environment variable overrides...")

	overrides := []struct {
		key    string
		target *string
	}{
		{"RUN_MODE", &cfg.RunMode},
		{"WEBSOCKET_PORT", &cfg.WebSocketPort},
		{"UPSTREAM_TYPE", &cfg.Upstream.Type},
		{"REDIS_ADDR", &cfg.Upstream.Redis.Addr},
		{"REDIS_PASSWORD", &cfg.Upstream.Redis.Password},
		{"FEED_CHANNEL", &cfg.Upstream.Redis.Channel},
		{"GCP_PROJECT_ID", &cfg.Upstream.Pubsub.ProjectID},
		{"PUBSUB_SUBSCRIPTION_ID", &cfg.Upstream.Pubsub.SubscriptionID},
		{"PUBSUB_TOPIC_ID", &cfg.Upstream.Pubsub.TopicID},
		{"DB_DRIVER", &cfg.Store.Driver},
		{"DB_DSN", &cfg.Store.DSN},
		{"SESSION_SERIALIZER", &cfg.Session.Serializer},
		{"SESSION_SECRET_KEY", &cfg.Session.SecretKey},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FILE", &cfg.Log.File},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			logger.Debug().Str("key", o.key).Str("source", "env").Msg("Overriding config value")
			*o.target = v
		}
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug().Str("key", "CORS_ALLOWED_ORIGINS").Str("source", "env").Msg("Overriding config value")
		// Split by comma and trim spaces
		var cleanOrigins []string
		for _, o := range strings.Split(corsOrigins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.Websocket.AllowedOrigins = cleanOrigins
	}

	if err := validate(cfg); err != nil {
		logger.Error().Err(err).Msg("Final config validation failed")
		return nil, err
	}

	logger.Debug().Msg("Configuration finalized and validated successfully")
	return cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.WebSocketPort == "" {
		return fmt.Errorf("WEBSOCKET_PORT is not set in config or env var")
	}

	switch cfg.Upstream.Type {
	case UpstreamRedis:
		if cfg.Upstream.Redis.Addr == "" {
			return fmt.Errorf("upstream type is redis but REDIS_ADDR is not set")
		}
	case UpstreamPubsub:
		if cfg.Upstream.Pubsub.ProjectID == "" {
			return fmt.Errorf("upstream type is pubsub but GCP_PROJECT_ID is not set")
		}
		if cfg.Upstream.Pubsub.SubscriptionID == "" {
			return fmt.Errorf("upstream type is pubsub but PUBSUB_SUBSCRIPTION_ID is not set")
		}
	default:
		return fmt.Errorf("invalid upstream type: %q (must be 'redis' or 'pubsub')", cfg.Upstream.Type)
	}

	switch cfg.Store.Driver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("invalid store driver: %q (must be 'mysql' or 'sqlite3')", cfg.Store.Driver)
	}
	if cfg.Store.DSN == "" {
		return fmt.Errorf("DB_DSN is not set in config or env var")
	}

	switch cfg.Session.Serializer {
	case "pickle", "json":
	default:
		return fmt.Errorf("invalid session serializer: %q (must be 'pickle' or 'json')", cfg.Session.Serializer)
	}
	return nil
}
