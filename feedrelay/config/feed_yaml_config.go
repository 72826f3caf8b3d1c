package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// --- YAML-Specific Structs ---

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type YamlPubsubConfig struct {
	ProjectID      string `yaml:"project_id"`
	SubscriptionID string `yaml:"subscription_id"`
	TopicID        string `yaml:"topic_id"`
}

type YamlUpstreamConfig struct {
	Type           string           `yaml:"type"` // "redis" or "pubsub"
	Redis          YamlRedisConfig  `yaml:"redis"`
	Pubsub         YamlPubsubConfig `yaml:"pubsub"`
	InitialBackoff string           `yaml:"initial_backoff"`
	MaxBackoff     string           `yaml:"max_backoff"`
	ReadyTimeout   string           `yaml:"ready_timeout"`
	StableStream   string           `yaml:"stable_stream"`
}

type YamlStoreConfig struct {
	Driver          string `yaml:"driver"` // "mysql" or "sqlite3"
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	SessionTable    string `yaml:"session_table"`
	FollowTable     string `yaml:"follow_table"`
	CheckExpiry     *bool  `yaml:"check_expiry"`
	CreateSchema    bool   `yaml:"create_schema"`
}

type YamlSessionConfig struct {
	Serializer string `yaml:"serializer"` // "pickle" or "json"
	SecretKey  string `yaml:"secret_key"`
}

type YamlWebsocketConfig struct {
	Path           string   `yaml:"path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SendBuffer     int      `yaml:"send_buffer"`
	PingInterval   string   `yaml:"ping_interval"`
	PongWait       string   `yaml:"pong_wait"`
	WriteWait      string   `yaml:"write_wait"`
	MaxMessageSize int64    `yaml:"max_message_size"`
	SubscribeRate  float64  `yaml:"subscribe_rate"`
	SubscribeBurst int      `yaml:"subscribe_burst"`
	LookupTimeout  string   `yaml:"lookup_timeout"`
}

type YamlLogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// YamlConfig defines the structure for unmarshaling the config.yaml file.
type YamlConfig struct {
	RunMode       string              `yaml:"run_mode"`
	WebSocketPort string              `yaml:"websocket_port"`
	Websocket     YamlWebsocketConfig `yaml:"websocket"`
	Upstream      YamlUpstreamConfig  `yaml:"upstream"`
	Store         YamlStoreConfig     `yaml:"store"`
	Session       YamlSessionConfig   `yaml:"session"`
	Log           YamlLogConfig       `yaml:"log"`
}

// --- Stage 1 Function ---

// NewConfigFromYaml converts the raw unmarshaled data (YamlConfig) into a
// base AppConfig, applying defaults and parsing durations.
// Stage 1 complete: the AppConfig exists, but without environment overrides.
func NewConfigFromYaml(yamlCfg *YamlConfig, logger zerolog.Logger) (*AppConfig, error) {
	logger.Debug().Msg("Mapping YAML config to base config struct")

	d := defaultAppConfig()
	cfg := &AppConfig{
		RunMode:       yamlCfg.RunMode,
		WebSocketPort: yamlCfg.WebSocketPort,
		Websocket: WebsocketConfig{
			Path:           orDefault(yamlCfg.Websocket.Path, d.Websocket.Path),
			AllowedOrigins: yamlCfg.Websocket.AllowedOrigins,
			SendBuffer:     intOrDefault(yamlCfg.Websocket.SendBuffer, d.Websocket.SendBuffer),
			MaxMessageSize: int64OrDefault(yamlCfg.Websocket.MaxMessageSize, d.Websocket.MaxMessageSize),
			SubscribeRate:  floatOrDefault(yamlCfg.Websocket.SubscribeRate, d.Websocket.SubscribeRate),
			SubscribeBurst: intOrDefault(yamlCfg.Websocket.SubscribeBurst, d.Websocket.SubscribeBurst),
		},
		Upstream: UpstreamConfig{
			Type:   yamlCfg.Upstream.Type,
			Redis:  yamlCfg.Upstream.Redis,
			Pubsub: yamlCfg.Upstream.Pubsub,
		},
		Store: StoreConfig{
			Driver:       yamlCfg.Store.Driver,
			DSN:          yamlCfg.Store.DSN,
			MaxOpenConns: intOrDefault(yamlCfg.Store.MaxOpenConns, d.Store.MaxOpenConns),
			MaxIdleConns: intOrDefault(yamlCfg.Store.MaxIdleConns, d.Store.MaxIdleConns),
			SessionTable: orDefault(yamlCfg.Store.SessionTable, d.Store.SessionTable),
			FollowTable:  orDefault(yamlCfg.Store.FollowTable, d.Store.FollowTable),
			CheckExpiry:  d.Store.CheckExpiry,
			CreateSchema: yamlCfg.Store.CreateSchema,
		},
		Session: SessionConfig{
			Serializer: orDefault(yamlCfg.Session.Serializer, d.Session.Serializer),
			SecretKey:  yamlCfg.Session.SecretKey,
		},
		Log: LogConfig{
			Level:      orDefault(yamlCfg.Log.Level, d.Log.Level),
			File:       yamlCfg.Log.File,
			MaxSizeMB:  intOrDefault(yamlCfg.Log.MaxSizeMB, d.Log.MaxSizeMB),
			MaxBackups: intOrDefault(yamlCfg.Log.MaxBackups, d.Log.MaxBackups),
			MaxAgeDays: intOrDefault(yamlCfg.Log.MaxAgeDays, d.Log.MaxAgeDays),
		},
	}
	if yamlCfg.Store.CheckExpiry != nil {
		cfg.Store.CheckExpiry = *yamlCfg.Store.CheckExpiry
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
		def    time.Duration
	}{
		{"websocket.ping_interval", yamlCfg.Websocket.PingInterval, &cfg.Websocket.PingInterval, d.Websocket.PingInterval},
		{"websocket.pong_wait", yamlCfg.Websocket.PongWait, &cfg.Websocket.PongWait, d.Websocket.PongWait},
		{"websocket.write_wait", yamlCfg.Websocket.WriteWait, &cfg.Websocket.WriteWait, d.Websocket.WriteWait},
		{"websocket.lookup_timeout", yamlCfg.Websocket.LookupTimeout, &cfg.Websocket.LookupTimeout, d.Websocket.LookupTimeout},
		{"upstream.initial_backoff", yamlCfg.Upstream.InitialBackoff, &cfg.Upstream.InitialBackoff, d.Upstream.InitialBackoff},
		{"upstream.max_backoff", yamlCfg.Upstream.MaxBackoff, &cfg.Upstream.MaxBackoff, d.Upstream.MaxBackoff},
		{"upstream.ready_timeout", yamlCfg.Upstream.ReadyTimeout, &cfg.Upstream.ReadyTimeout, d.Upstream.ReadyTimeout},
		{"upstream.stable_stream", yamlCfg.Upstream.StableStream, &cfg.Upstream.StableStream, d.Upstream.StableStream},
		{"store.conn_max_lifetime", yamlCfg.Store.ConnMaxLifetime, &cfg.Store.ConnMaxLifetime, d.Store.ConnMaxLifetime},
	}
	for _, dur := range durations {
		if dur.raw == "" {
			*dur.target = dur.def
			continue
		}
		parsed, err := time.ParseDuration(dur.raw)
		if err != nil {
			logger.Error().Err(err).Str("key", dur.key).Msg("Invalid duration in YAML config")
			return nil, fmt.Errorf("invalid duration for %s: %w", dur.key, err)
		}
		*dur.target = parsed
	}

	logger.Debug().
		Str("websocket_port", cfg.WebSocketPort).
		Str("upstream_type", cfg.Upstream.Type).
		Str("store_driver", cfg.Store.Driver).
		Str("session_serializer", cfg.Session.Serializer).
		Msg("YAML config mapping complete")

	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func int64OrDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func floatOrDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
