package gemini

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/genai"
)

// Models は genai.Models のうち、このアプリケーションが利用するメソッドです。
// テストではフェイク実装に差し替えます。
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// Operations は動画生成オペレーションの状態取得に使うメソッドです。
type Operations interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// LiveConn は genai.Session が満たす Live API の双方向接続です。
type LiveConn interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// LiveConnector は Live API のセッションを開きます。
type LiveConnector interface {
	Connect(ctx context.Context, model string, config *genai.LiveConnectConfig) (LiveConn, error)
}

// Downloader は生成済みアセットを取得します。戻り値はデータと Content-Type です。
type Downloader interface {
	Download(ctx context.Context, uri string) ([]byte, string, error)
}

// Client は Gemini API への各エンドポイントをまとめたものです。
type Client struct {
	Models     Models
	Operations Operations
	Live       LiveConnector
	Downloader Downloader
}

// NewClient は APIキーで genai.Client を初期化し、Client を返します。
// APIキーが空の場合はネットワークに触れずに ErrMissingCredential を返します。
func NewClient(ctx context.Context, apiKey string, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	base, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	slog.Debug("Gemini Client initialized", "backend", "gemini-api")

	return &Client{
		Models:     base.Models,
		Operations: base.Operations,
		Live:       liveConnector{live: base.Live},
		Downloader: NewHTTPDownloader(apiKey, httpClient),
	}, nil
}

type liveConnector struct {
	live *genai.Live
}

func (c liveConnector) Connect(ctx context.Context, model string, config *genai.LiveConnectConfig) (LiveConn, error) {
	session, err := c.live.Connect(ctx, model, config)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// HTTPDownloader は APIキーを x-goog-api-key ヘッダに付けてアセットを取得します。
type HTTPDownloader struct {
	apiKey     string
	httpClient *http.Client
}

// NewHTTPDownloader は新しい HTTPDownloader を作成します。
func NewHTTPDownloader(apiKey string, httpClient *http.Client) *HTTPDownloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPDownloader{apiKey: apiKey, httpClient: httpClient}
}

// Download は uri の内容を取得します。
func (d *HTTPDownloader) Download(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ダウンロードリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("x-goog-api-key", d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("アセットのダウンロードに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("アセットのダウンロードに失敗: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("アセットの読み込みに失敗: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
