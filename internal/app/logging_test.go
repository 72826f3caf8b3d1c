package app_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nceruchalu/go-feed-relay/internal/app"
)

func TestNewLogger(t *testing.T) {
	t.Run("Defaults to info", func(t *testing.T) {
		logger, closer, err := app.NewLogger("feed-relay", app.LogOptions{})
		require.NoError(t, err)
		defer closer.Close()
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("Writes to the rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "relay.log")
		logger, closer, err := app.NewLogger("feed-relay", app.LogOptions{Level: "DEBUG", File: path, MaxSizeMB: 1})
		require.NoError(t, err)
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

		logger.Info().Msg("hello file")
		require.NoError(t, closer.Close())

		contents, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(contents), "hello file")
		assert.Contains(t, string(contents), `"service":"feed-relay"`)
	})

	t.Run("Console output is not JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := app.NewLogger("feed-relay", app.LogOptions{Console: true, Output: &buf})
		require.NoError(t, err)
		defer closer.Close()

		logger.Info().Str("room", "3").Msg("hello console")
		out := buf.String()
		assert.Contains(t, out, "hello console")
		assert.Contains(t, out, "room")
		assert.NotContains(t, out, `"room":"3"`)
		assert.NotContains(t, out, `"message"`)
	})

	t.Run("JSON output by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := app.NewLogger("feed-relay", app.LogOptions{Output: &buf})
		require.NoError(t, err)
		defer closer.Close()

		logger.Info().Msg("hello json")
		assert.Contains(t, buf.String(), `"message":"hello json"`)
	})

	t.Run("Rejects unknown level", func(t *testing.T) {
		_, _, err := app.NewLogger("feed-relay", app.LogOptions{Level: "loud"})
		require.Error(t, err)
	})
}
