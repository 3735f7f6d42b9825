// Package apis はブラウザの UI に向けた HTTP / WebSocket の入口です。
package apis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"workspace-live-go/internal/media"
	"workspace-live-go/internal/metrics"
	"workspace-live-go/internal/pipeline"
	"workspace-live-go/internal/types"
)

// Studio はハンドラが呼び出す生成機能です。studio.Studio が満たします。
type Studio interface {
	EditCode(ctx context.Context, code, instruction, filename string) (string, error)
	ExplainCode(ctx context.Context, code, filename string) (string, error)
	FixBugs(ctx context.Context, code, filename string) (string, error)
	Chat(ctx context.Context, message string) (types.ChatResult, error)
	GenerateImage(ctx context.Context, prompt, aspectRatio, imageSize string) (string, error)
	GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error)
	AnalyzeImage(ctx context.Context, imageDataURI, prompt string) (string, error)
	LiveOpener() pipeline.SessionOpener
	LiveInputSampleRate() int
}

// ServerConfig は HTTP サーバーの設定です。
type ServerConfig struct {
	ListenAddr      string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Server は UI 向けの API サーバーです。
type Server struct {
	studio   Studio
	blobs    media.Store
	bridge   *pipeline.LiveBridge
	metrics  *metrics.Metrics
	config   ServerConfig
	logger   *slog.Logger
	origins  map[string]struct{}
	upgrader websocket.Upgrader

	server     *http.Server
	listener   net.Listener
	done       chan struct{}
	cancelBase context.CancelFunc
}

// NewServer は新しい Server を作成します。ライブ音声のセッションはサーバー全体で1つだけです。
func NewServer(studio Studio, blobs media.Store, m *metrics.Metrics, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}

	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	s := &Server{
		studio:  studio,
		blobs:   blobs,
		bridge:  pipeline.NewLiveBridge(studio.LiveOpener(), studio.LiveInputSampleRate(), m, logger),
		metrics: m,
		config:  cfg,
		logger:  logger,
		origins: origins,
	}
	// Origin は originAllowed で確認済み
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// Handler はすべてのルートを登録したハンドラを返します。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/code/edit", s.handleEditCode)
	mux.HandleFunc("POST /api/code/explain", s.handleExplainCode)
	mux.HandleFunc("POST /api/code/fix", s.handleFixBugs)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/images", s.handleGenerateImage)
	mux.HandleFunc("POST /api/images/analyze", s.handleAnalyzeImage)
	mux.HandleFunc("POST /api/videos", s.handleGenerateVideo)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("GET /api/blobs/{id}", s.handleBlob)
	mux.HandleFunc("GET /healthz", handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start はリッスンを開始し、バックグラウンドでリクエストの処理を始めます。
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}
	// ハイジャック済みの WebSocket は Shutdown の対象外なので、ベースコンテキストで止める
	base, cancel := context.WithCancel(context.Background())
	s.cancelBase = cancel
	s.listener = ln
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	s.logger.Info("API サーバーを起動しました", "addr", ln.Addr().String())

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API サーバーが予期せぬエラーで停止しました", "error", err)
		}
	}()
	return nil
}

// Addr は実際にリッスンしているアドレスを返します。
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop は処理中のリクエストを待ってサーバーを停止します。
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.cancelBase()
	<-s.done
	s.logger.Info("API サーバーを停止しました")
	return err
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
