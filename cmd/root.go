package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"workspace-live-go/internal/config"
	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/media"
	"workspace-live-go/internal/metrics"
	"workspace-live-go/internal/services/studio"
)

var (
	// コマンドラインフラグを保持する変数
	configFile string
	envFile    string
	apiKey     string
	logLevel   string
	logFormat  string
)

// rootCmd はアプリケーション全体のルートコマンドを定義します。
var rootCmd = &cobra.Command{
	Use:   "workspace_live",
	Short: "Gemini API を使ったコード編集・チャット・画像/動画生成・ライブ音声のワークスペース",
	Long: `Workspace Live Go は、ブラウザの UI から Gemini API の各機能を呼び出すためのサーバーです。

serve でサーバーを起動し、chat や image などのサブコマンドで各機能を単発で実行できます。`,
	SilenceUsage: true,
}

// Execute はルートコマンドを実行します。
func Execute() error {
	return rootCmd.Execute()
}

// init は永続フラグを設定します。
func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "設定ファイルのパス (省略時はカレントディレクトリの workspace.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "読み込む .env ファイル (省略時は WORKSPACE_ENV_FILE または .env)")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "gemini-api-key", "k", "", "Gemini APIキー。環境変数 GEMINI_API_KEY で設定可能。")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "ログレベル (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "ログ形式 (text, json)")
}

// loadConfig は設定を読み込み、ロガーを初期化します。extra はコマンド固有のフラグです。
func loadConfig(cmd *cobra.Command, extra map[string]string) (*config.Config, *slog.Logger, error) {
	flags := map[string]*pflag.Flag{
		"gemini.api_key": cmd.Flags().Lookup("gemini-api-key"),
		"log.level":      cmd.Flags().Lookup("log-level"),
		"log.format":     cmd.Flags().Lookup("log-format"),
	}
	for key, name := range extra {
		flags[key] = cmd.Flags().Lookup(name)
	}
	// 指定されていないフラグは設定ファイルや環境変数を上書きしない
	for key, f := range flags {
		if f == nil || !f.Changed {
			delete(flags, key)
		}
	}

	cfg, err := config.Load(config.Options{ConfigFile: configFile, EnvFile: envFile, Flags: flags})
	if err != nil {
		return nil, nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// app はコマンドが共有するコンポーネントです。
type app struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	blobs   *media.MemoryStore
	studio  *studio.Studio
}

// newApp はクライアントとサービスを組み立てます。
// APIキーがない場合も起動は続け、各機能の呼び出しが ErrMissingCredential で失敗します。
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	httpClient := &http.Client{Timeout: 10 * time.Minute}

	client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, httpClient)
	if err != nil {
		if !errors.Is(err, gemini.ErrMissingCredential) {
			return nil, fmt.Errorf("Gemini クライアントの初期化に失敗: %w", err)
		}
		logger.Warn("Gemini APIキーが設定されていません。auth コマンドまたは GEMINI_API_KEY で設定してください。")
		client = nil
	}

	m := metrics.New("workspace_live")
	blobs := media.NewMemoryStore(cfg.Media, logger)
	st := studio.New(client, blobs, cfg.StudioConfig(), m, logger, cfg.PollerOptions()...)

	return &app{
		config:  cfg,
		logger:  logger,
		metrics: m,
		blobs:   blobs,
		studio:  st,
	}, nil
}
