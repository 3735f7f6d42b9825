package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate は実行環境の .env や環境変数の影響を受けないようにします。
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv(APIKeyEnv, "")
	t.Setenv(EnvPrefix+"_GEMINI_API_KEY", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Models.Chat)
	assert.Equal(t, "veo-3.1-fast-generate-preview", cfg.Gemini.Models.Video)
	assert.Equal(t, 16000, cfg.Live.SampleRate)
	assert.Equal(t, 16000, cfg.Live.OutputSampleRate)
	assert.Equal(t, 5*time.Second, cfg.Video.PollInterval)
	assert.Equal(t, 120, cfg.Video.MaxAttempts)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "/api/blobs", cfg.Media.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)

	live := cfg.LiveAPIConfig()
	assert.Equal(t, cfg.Gemini.Models.Live, live.Model)
	assert.Equal(t, "Zephyr", live.Voice)
	assert.Len(t, cfg.PollerOptions(), 2)
}

func TestLoadLayering(t *testing.T) {
	dir := isolate(t)

	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("GEMINI_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv(APIKeyEnv) })
	os.Unsetenv(APIKeyEnv)

	configFile := filepath.Join(dir, "workspace.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
video:
  poll_interval: 2s
  resolution: 1080p
server:
  listen_addr: ":9000"
  allowed_origins: ["http://localhost:5173"]
`), 0o600))

	t.Setenv(EnvPrefix+"_SERVER_LISTEN_ADDR", ":9100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "debug"}))

	cfg, err := Load(Options{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      map[string]*pflag.Flag{"log.level": flags.Lookup("log-level")},
	})
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.Gemini.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Video.PollInterval)
	assert.Equal(t, "1080p", cfg.StudioConfig().VideoResolution)
	assert.Equal(t, ":9100", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadSystemInstructionFile(t *testing.T) {
	dir := isolate(t)
	prompt := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(prompt, []byte("  Answer briefly.\n"), 0o600))
	t.Setenv(EnvPrefix+"_LIVE_SYSTEM_INSTRUCTION_FILE", prompt)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "Answer briefly.", cfg.LiveAPIConfig().SystemInstruction)
}

func TestLoadMissingConfigFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(Options{ConfigFile: filepath.Join(dir, "nope.yaml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "sample rate", mutate: func(c *Config) { c.Live.SampleRate = 0 }, want: "live.sample_rate"},
		{name: "poll interval", mutate: func(c *Config) { c.Video.PollInterval = 0 }, want: "video.poll_interval"},
		{name: "max attempts", mutate: func(c *Config) { c.Video.MaxAttempts = -1 }, want: "video.max_attempts"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, want: "log.level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(Options{})
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
