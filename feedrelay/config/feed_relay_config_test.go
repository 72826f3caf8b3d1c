package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nceruchalu/go-feed-relay/feedrelay/config"
)

// newBaseConfig simulates what NewConfigFromYaml would produce.
func newBaseConfig() *config.AppConfig {
	return &config.AppConfig{
		RunMode:       "base-mode",
		WebSocketPort: "9091",
		Upstream: config.UpstreamConfig{
			Type:  config.UpstreamRedis,
			Redis: config.YamlRedisConfig{Addr: "base-redis:6379", Channel: "feed"},
		},
		Store: config.StoreConfig{
			Driver: "sqlite3",
			DSN:    "file:base.db",
		},
		Session: config.SessionConfig{Serializer: "pickle"},
	}
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - overrides applied", func(t *testing.T) {
		baseCfg := newBaseConfig()

		t.Setenv("WEBSOCKET_PORT", "8001")
		t.Setenv("REDIS_ADDR", "env-redis:6379")
		t.Setenv("FEED_CHANNEL", "env-feed")
		t.Setenv("DB_DRIVER", "mysql")
		t.Setenv("DB_DSN", "user:pass@tcp(db:3306)/app")
		t.Setenv("SESSION_SERIALIZER", "json")
		t.Setenv("SESSION_SECRET_KEY", "s3cret")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.com, http://b.com ,")
		t.Setenv("LOG_LEVEL", "warn")

		cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "8001", cfg.WebSocketPort)
		assert.Equal(t, "env-redis:6379", cfg.Upstream.Redis.Addr)
		assert.Equal(t, "env-feed", cfg.Upstream.Redis.Channel)
		assert.Equal(t, "mysql", cfg.Store.Driver)
		assert.Equal(t, "user:pass@tcp(db:3306)/app", cfg.Store.DSN)
		assert.Equal(t, "json", cfg.Session.Serializer)
		assert.Equal(t, "s3cret", cfg.Session.SecretKey)
		assert.Equal(t, []string{"http://a.com", "http://b.com"}, cfg.Websocket.AllowedOrigins)
		assert.Equal(t, "warn", cfg.Log.Level)

		// Non-overridden fields remain
		assert.Equal(t, "base-mode", cfg.RunMode)
		assert.Equal(t, config.UpstreamRedis, cfg.Upstream.Type)
	})

	t.Run("Success - run mode from env", func(t *testing.T) {
		t.Setenv("RUN_MODE", "production")

		cfg, err := config.UpdateConfigWithEnvOverrides(newBaseConfig(), logger)
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.RunMode)
		assert.NotEqual(t, config.RunModeLocal, cfg.RunMode)
	})

	t.Run("Success - pubsub upstream from env", func(t *testing.T) {
		baseCfg := newBaseConfig()
		t.Setenv("UPSTREAM_TYPE", "pubsub")
		t.Setenv("GCP_PROJECT_ID", "env-project")
		t.Setenv("PUBSUB_SUBSCRIPTION_ID", "feed-sub")

		cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
		require.NoError(t, err)
		assert.Equal(t, config.UpstreamPubsub, cfg.Upstream.Type)
		assert.Equal(t, "env-project", cfg.Upstream.Pubsub.ProjectID)
		assert.Equal(t, "feed-sub", cfg.Upstream.Pubsub.SubscriptionID)
	})

	testCases := []struct {
		name    string
		mutate  func(*config.AppConfig)
		wantErr string
	}{
		{"missing port", func(c *config.AppConfig) { c.WebSocketPort = "" }, "WEBSOCKET_PORT"},
		{"unknown upstream", func(c *config.AppConfig) { c.Upstream.Type = "kafka" }, "invalid upstream type"},
		{"redis without addr", func(c *config.AppConfig) { c.Upstream.Redis.Addr = "" }, "REDIS_ADDR"},
		{"pubsub without project", func(c *config.AppConfig) {
			c.Upstream.Type = config.UpstreamPubsub
			c.Upstream.Pubsub.SubscriptionID = "sub"
		}, "GCP_PROJECT_ID"},
		{"pubsub without subscription", func(c *config.AppConfig) {
			c.Upstream.Type = config.UpstreamPubsub
			c.Upstream.Pubsub.ProjectID = "p"
		}, "PUBSUB_SUBSCRIPTION_ID"},
		{"unknown driver", func(c *config.AppConfig) { c.Store.Driver = "postgres" }, "invalid store driver"},
		{"missing dsn", func(c *config.AppConfig) { c.Store.DSN = "" }, "DB_DSN"},
		{"unknown serializer", func(c *config.AppConfig) { c.Session.Serializer = "xml" }, "invalid session serializer"},
	}
	for _, tc := range testCases {
		t.Run("Failure - "+tc.name, func(t *testing.T) {
			baseCfg := newBaseConfig()
			tc.mutate(baseCfg)

			cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - loads values without overriding existing env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("FEEDRELAY_TEST_A=from-file\nFEEDRELAY_TEST_B=from-file\n"), 0o600))

		t.Setenv("FEEDRELAY_TEST_B", "from-env")
		// t.Setenv restores the prior value afterwards; register A so it is cleaned up too.
		t.Setenv("FEEDRELAY_TEST_A", "")
		require.NoError(t, os.Unsetenv("FEEDRELAY_TEST_A"))

		require.NoError(t, config.LoadEnvFile(path, logger))
		assert.Equal(t, "from-file", os.Getenv("FEEDRELAY_TEST_A"))
		assert.Equal(t, "from-env", os.Getenv("FEEDRELAY_TEST_B"))
	})

	t.Run("Failure - explicit missing file", func(t *testing.T) {
		err := config.LoadEnvFile(filepath.Join(t.TempDir(), "nope.env"), logger)
		require.Error(t, err)
	})
}
