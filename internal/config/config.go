// Package config はフラグ・環境変数・設定ファイル・.env を一つの Config にまとめます。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"workspace-live-go/internal/audio"
	"workspace-live-go/internal/media"
	"workspace-live-go/internal/pipeline"
	"workspace-live-go/internal/services/studio"
	"workspace-live-go/internal/types"
	"workspace-live-go/internal/util"
)

// EnvPrefix は設定キーに対応する環境変数の接頭辞です (例: WORKSPACE_SERVER_LISTEN_ADDR)。
const EnvPrefix = "WORKSPACE"

// APIKeyEnv は APIキーを読み込む環境変数名です。
const APIKeyEnv = "GEMINI_API_KEY"

// Config はアプリケーション全体の設定です。
type Config struct {
	Gemini GeminiConfig      `mapstructure:"gemini"`
	Live   LiveConfig        `mapstructure:"live"`
	Video  VideoConfig       `mapstructure:"video"`
	Server ServerConfig      `mapstructure:"server"`
	Media  media.StoreConfig `mapstructure:"media"`
	Log    LogConfig         `mapstructure:"log"`
}

type GeminiConfig struct {
	APIKey string        `mapstructure:"api_key"`
	Models studio.Models `mapstructure:"models"`
}

type LiveConfig struct {
	Voice                 string `mapstructure:"voice"`
	SystemInstruction     string `mapstructure:"system_instruction"`
	SystemInstructionFile string `mapstructure:"system_instruction_file"`
	SampleRate            int    `mapstructure:"sample_rate"`
	OutputSampleRate      int    `mapstructure:"output_sample_rate"`
}

type VideoConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Resolution   string        `mapstructure:"resolution"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Options は Load の入力です。
type Options struct {
	// ConfigFile は明示的に読み込む設定ファイルです。空ならカレントディレクトリの workspace.yaml を探します。
	ConfigFile string
	// EnvFile は読み込む .env ファイルです。空なら EnvFileOrDefault に従います。
	EnvFile string
	// Flags は設定キーに対応付けるコマンドラインフラグです。
	Flags map[string]*pflag.Flag
}

func setDefaults(v *viper.Viper) {
	models := studio.DefaultModels()
	store := media.DefaultStoreConfig()

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.models.code", models.Code)
	v.SetDefault("gemini.models.chat", models.Chat)
	v.SetDefault("gemini.models.image", models.Image)
	v.SetDefault("gemini.models.video", models.Video)
	v.SetDefault("gemini.models.analyze", models.Analyze)
	v.SetDefault("gemini.models.live", models.Live)

	v.SetDefault("live.voice", "Zephyr")
	v.SetDefault("live.system_instruction", "")
	v.SetDefault("live.system_instruction_file", "")
	v.SetDefault("live.sample_rate", audio.SampleRate)
	v.SetDefault("live.output_sample_rate", audio.SampleRate)

	v.SetDefault("video.poll_interval", pipeline.DefaultPollInterval)
	v.SetDefault("video.max_attempts", pipeline.DefaultMaxPollAttempts)
	v.SetDefault("video.resolution", "720p")

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 32<<20)

	v.SetDefault("media.base_url", store.BaseURL)
	v.SetDefault("media.max_blob_bytes", store.MaxBlobSize)
	v.SetDefault("media.max_blobs", store.MaxBlobs)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load は .env・設定ファイル・環境変数・フラグの順に重ねて Config を構築します (後のものが優先)。
func Load(opts Options) (*Config, error) {
	// .env がなくてもエラーにしない
	_ = godotenv.Load(EnvFileOrDefault(opts.EnvFile))

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("workspace")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gemini.api_key", EnvPrefix+"_GEMINI_API_KEY", APIKeyEnv); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Live.SystemInstruction == "" && cfg.Live.SystemInstructionFile != "" {
		instruction, err := util.LoadPromptFile(cfg.Live.SystemInstructionFile)
		if err != nil {
			return nil, err
		}
		cfg.Live.SystemInstruction = instruction
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は値の範囲を確認します。APIキーの有無はここでは確認しません。
func (c *Config) Validate() error {
	var problems []string

	if c.Live.SampleRate <= 0 {
		problems = append(problems, "live.sample_rate must be positive")
	}
	if c.Live.OutputSampleRate <= 0 {
		problems = append(problems, "live.output_sample_rate must be positive")
	}
	if c.Video.PollInterval <= 0 {
		problems = append(problems, "video.poll_interval must be positive")
	}
	if c.Video.MaxAttempts <= 0 {
		problems = append(problems, "video.max_attempts must be positive")
	}
	if c.Media.MaxBlobSize <= 0 {
		problems = append(problems, "media.max_blob_bytes must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LiveAPIConfig はライブセッションの接続設定を返します。
func (c *Config) LiveAPIConfig() types.LiveAPIConfig {
	return types.LiveAPIConfig{
		Model:             c.Gemini.Models.Live,
		Voice:             c.Live.Voice,
		SystemInstruction: c.Live.SystemInstruction,
		InputSampleRate:   c.Live.SampleRate,
		OutputSampleRate:  c.Live.OutputSampleRate,
	}
}

// StudioConfig は Studio の設定を返します。
func (c *Config) StudioConfig() studio.Config {
	return studio.Config{
		Models:          c.Gemini.Models,
		VideoResolution: c.Video.Resolution,
		Live:            c.LiveAPIConfig(),
	}
}

// PollerOptions は動画ポーリングの設定を返します。
func (c *Config) PollerOptions() []pipeline.PollerOption {
	return []pipeline.PollerOption{
		pipeline.WithInterval(c.Video.PollInterval),
		pipeline.WithMaxAttempts(c.Video.MaxAttempts),
	}
}

// EnvFileOrDefault は path が空なら WORKSPACE_ENV_FILE、それもなければ .env を返します。
func EnvFileOrDefault(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(EnvPrefix + "_ENV_FILE"); env != "" {
		return env
	}
	return ".env"
}
