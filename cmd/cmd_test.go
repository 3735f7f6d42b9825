package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-live-go/internal/config"
	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/util"
)

func TestAuthSavesAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".env")

	rootCmd.SetArgs([]string{"auth", "--gemini-api-key", "test-key", "--env-file", path})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		apiKey, envFile = "", ""
	})
	require.NoError(t, rootCmd.Execute())

	values, err := util.LoadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test-key", values[config.APIKeyEnv])
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	logger = newLogger(config.LogConfig{Level: "debug", Format: "text"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewAppWithoutAPIKey(t *testing.T) {
	cfg := &config.Config{}
	a, err := newApp(context.Background(), cfg, slog.Default())
	require.NoError(t, err)

	_, err = a.studio.Chat(context.Background(), "hi")
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
}
