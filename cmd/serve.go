package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"workspace-live-go/internal/apis"
)

// serveFlags は serve コマンドのフラグを保持するための構造体です。
var serveFlags struct {
	listenAddr string
}

// serveCmd は UI 向けの API サーバーを起動するコマンドです。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "UI 向けの API サーバーを起動します。",
	Long:  `コード編集・チャット・画像/動画生成・画像解析の HTTP API と、ライブ音声の WebSocket を提供します。`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveFlags.listenAddr, "listen", ":8080", "待ち受けるアドレス (例: :8080, 127.0.0.1:3000)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, map[string]string{"server.listen_addr": "listen"})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := apis.NewServer(a.studio, a.blobs, a.metrics, apis.ServerConfig{
		ListenAddr:      cfg.Server.ListenAddr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, logger)

	if err := server.Start(); err != nil {
		return fmt.Errorf("API サーバーの起動に失敗: %w", err)
	}
	slog.Info("📢 Workspace Live Go を起動しました", "addr", server.Addr(), "live_model", cfg.Gemini.Models.Live)

	// OSシグナルハンドリング (Ctrl+Cなどで終了できるように)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("サービスを終了します", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("サービスがキャンセルされました")
	}

	if err := server.Stop(context.Background()); err != nil {
		return fmt.Errorf("API サーバーの停止に失敗: %w", err)
	}
	return nil
}
