// Package studio はワークスペース UI の各アクションを Gemini API の呼び出しに対応付けます。
// どの機能もリトライせず、失敗はそのまま呼び出し元へ返します (コード編集のみ元のコードを返します)。
package studio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"workspace-live-go/internal/audio"
	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/media"
	"workspace-live-go/internal/metrics"
	"workspace-live-go/internal/pipeline"
	"workspace-live-go/internal/types"
	"workspace-live-go/internal/util"
)

const (
	// ExplainInstruction はコード解説に使う固定の指示です。
	ExplainInstruction = "Add clear, concise comments explaining what this code does and why. Do not change its behavior."

	// FixBugsInstruction はバグ修正に使う固定の指示です。
	FixBugsInstruction = "Find and fix any bugs in this code. Keep everything else unchanged."

	imageMimeType = "image/png"
	videoMimeType = "video/mp4"
)

// Models は機能ごとに使うモデル名です。
type Models struct {
	Code    string `mapstructure:"code"`
	Chat    string `mapstructure:"chat"`
	Image   string `mapstructure:"image"`
	Video   string `mapstructure:"video"`
	Analyze string `mapstructure:"analyze"`
	Live    string `mapstructure:"live"`
}

// DefaultModels はデフォルトのモデル名を返します。
func DefaultModels() Models {
	return Models{
		Code:    "gemini-3-pro-preview",
		Chat:    "gemini-2.5-flash",
		Image:   "gemini-3-pro-image-preview",
		Video:   "veo-3.1-fast-generate-preview",
		Analyze: "gemini-3-pro-preview",
		Live:    "gemini-2.5-flash-native-audio-preview-09-2025",
	}
}

// Config は Studio の設定です。
type Config struct {
	Models          Models
	VideoResolution string
	Live            types.LiveAPIConfig
}

// Studio は UI アクション1つにつきプロバイダ呼び出し1回 (動画はポーリングを含む) を行います。
type Studio struct {
	client  *gemini.Client
	poller  *pipeline.VideoPoller
	blobs   media.Store
	metrics *metrics.Metrics
	config  Config
	logger  *slog.Logger
}

// New は新しい Studio を作成します。client が nil の場合、すべての機能は ErrMissingCredential を返します。
func New(client *gemini.Client, blobs media.Store, cfg Config, m *metrics.Metrics, logger *slog.Logger, pollerOpts ...pipeline.PollerOption) *Studio {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VideoResolution == "" {
		cfg.VideoResolution = "720p"
	}
	if cfg.Live.Model == "" {
		cfg.Live.Model = cfg.Models.Live
	}
	if cfg.Live.InputSampleRate <= 0 {
		cfg.Live.InputSampleRate = audio.SampleRate
	}

	s := &Studio{
		client:  client,
		blobs:   blobs,
		metrics: m,
		config:  cfg,
		logger:  logger,
	}
	if client != nil {
		opts := append([]pipeline.PollerOption{pipeline.WithMetrics(m), pipeline.WithLogger(logger)}, pollerOpts...)
		s.poller = pipeline.NewVideoPoller(client.Operations, opts...)
	}
	return s
}

func (s *Studio) observe(capability types.Capability, start time.Time, status string) {
	s.metrics.ObserveRequest(string(capability), status, time.Since(start))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// EditCode は指示に従ってコードを書き換えます。
// 応答が空・失敗・フェンスの除去に失敗した場合は元のコードをそのまま返します。
// 戻り値が元のコードと同じでも成功扱いになる点に注意してください。
func (s *Studio) EditCode(ctx context.Context, code, instruction, filename string) (string, error) {
	if s.client == nil {
		return code, gemini.ErrMissingCredential
	}
	start := time.Now()

	language := util.LanguageFromFilename(filename)
	prompt := fmt.Sprintf(`You are an expert %s developer editing the file %q.

Current content:
%s

Instruction: %s

Return only the complete updated file content. Do not wrap it in Markdown code fences and do not add explanations.`,
		language, filename, code, instruction)

	resp, err := s.client.Models.GenerateContent(ctx, s.config.Models.Code, userContents(prompt), nil)
	if err != nil {
		s.logger.Warn("コード編集に失敗したため元のコードを返します", "filename", filename, "error", err)
		s.observe(types.CapabilityEdit, start, "fallback")
		return code, nil
	}

	updated := util.StripCodeFence(ResponseText(resp))
	if updated == "" || strings.Contains(updated, util.FenceMarker) {
		s.logger.Warn("コード編集の応答が空または不正なため元のコードを返します", "filename", filename)
		s.observe(types.CapabilityEdit, start, "fallback")
		return code, nil
	}

	s.observe(types.CapabilityEdit, start, "ok")
	return updated, nil
}

// ExplainCode はコードに解説コメントを加えます。
func (s *Studio) ExplainCode(ctx context.Context, code, filename string) (string, error) {
	return s.EditCode(ctx, code, ExplainInstruction, filename)
}

// FixBugs はコードのバグを修正します。
func (s *Studio) FixBugs(ctx context.Context, code, filename string) (string, error) {
	return s.EditCode(ctx, code, FixBugsInstruction, filename)
}

// Chat は履歴を持たない新しい会話で、Google 検索によるグラウンディング付きの応答を返します。
func (s *Studio) Chat(ctx context.Context, message string) (types.ChatResult, error) {
	if s.client == nil {
		return types.ChatResult{}, gemini.ErrMissingCredential
	}
	start := time.Now()

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.config.Models.Chat, userContents(message), config)
	s.observe(types.CapabilityChat, start, statusOf(err))
	if err != nil {
		return types.ChatResult{}, fmt.Errorf("チャット応答の生成に失敗: %w", err)
	}

	return types.ChatResult{
		Text:    ResponseText(resp),
		Sources: GroundingSources(resp),
	}, nil
}

// GenerateImage は画像を1枚生成し、data:image/png;base64, 形式の URI を返します。
func (s *Studio) GenerateImage(ctx context.Context, prompt, aspectRatio, imageSize string) (string, error) {
	if s.client == nil {
		return "", gemini.ErrMissingCredential
	}
	start := time.Now()

	config := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspectRatio,
			ImageSize:   imageSize,
		},
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.config.Models.Image, userContents(prompt), config)
	if err != nil {
		s.observe(types.CapabilityImage, start, "error")
		return "", fmt.Errorf("画像の生成に失敗: %w", err)
	}

	blob := firstInlineData(resp)
	if blob == nil {
		s.observe(types.CapabilityImage, start, "no_result")
		return "", fmt.Errorf("%w: response contained no image", gemini.ErrNoResult)
	}

	s.observe(types.CapabilityImage, start, "ok")
	return util.DataURI(imageMimeType, blob.Data), nil
}

// GenerateVideo は動画生成ジョブを投入して完了までポーリングし、
// ダウンロードした動画をブロブストアに保存してその URL を返します。
func (s *Studio) GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error) {
	return s.generateVideo(ctx, prompt, aspectRatio, "")
}

// generateVideo は resolution が空の場合に設定値の解像度を使います。
func (s *Studio) generateVideo(ctx context.Context, prompt, aspectRatio, resolution string) (string, error) {
	if s.client == nil {
		return "", gemini.ErrMissingCredential
	}
	if resolution == "" {
		resolution = s.config.VideoResolution
	}
	start := time.Now()

	uri, err := s.runVideoJob(ctx, prompt, aspectRatio, resolution)
	s.observe(types.CapabilityVideo, start, statusOf(err))
	return uri, err
}

func (s *Studio) runVideoJob(ctx context.Context, prompt, aspectRatio, resolution string) (string, error) {
	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    aspectRatio,
		Resolution:     resolution,
	}
	op, err := s.client.Models.GenerateVideos(ctx, s.config.Models.Video, prompt, nil, config)
	if err != nil {
		return "", fmt.Errorf("動画生成ジョブの投入に失敗: %w", err)
	}
	if op == nil {
		return "", fmt.Errorf("%w: no operation returned", gemini.ErrGenerationFailed)
	}
	s.logger.Info("動画生成ジョブを投入しました", "operation", op.Name, "interval", s.poller.Interval())

	result, err := s.poller.Poll(ctx, op)
	if err != nil {
		return "", err
	}

	data, mimeType, err := s.client.Downloader.Download(ctx, result.ResultURI)
	if err != nil {
		return "", fmt.Errorf("動画のダウンロードに失敗: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: downloaded video is empty", gemini.ErrNoResult)
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = videoMimeType
	}

	stored, err := s.blobs.Save(ctx, media.SaveRequest{Data: data, MimeType: mimeType})
	if err != nil {
		return "", fmt.Errorf("動画の保存に失敗: %w", err)
	}
	return s.blobs.URL(stored.ID), nil
}

// AnalyzeImage は data URI の画像とプロンプトを送り、解析テキストを返します。
func (s *Studio) AnalyzeImage(ctx context.Context, imageDataURI, prompt string) (string, error) {
	if s.client == nil {
		return "", gemini.ErrMissingCredential
	}
	mimeType, data, err := util.ParseDataURI(imageDataURI)
	if err != nil {
		return "", err
	}
	start := time.Now()

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			{Text: prompt},
		},
	}}
	resp, err := s.client.Models.GenerateContent(ctx, s.config.Models.Analyze, contents, nil)
	s.observe(types.CapabilityAnalyze, start, statusOf(err))
	if err != nil {
		return "", fmt.Errorf("画像の解析に失敗: %w", err)
	}
	return ResponseText(resp), nil
}

// ConnectLive は音声のみで応答するライブセッションを開きます。
func (s *Studio) ConnectLive(ctx context.Context) (*gemini.LiveSession, error) {
	if s.client == nil {
		return nil, gemini.ErrMissingCredential
	}
	return gemini.OpenLiveSession(ctx, s.client.Live, s.config.Live, s.logger)
}

// LiveInputSampleRate はライブセッションへ送るマイク入力のサンプルレートです。
func (s *Studio) LiveInputSampleRate() int {
	return s.config.Live.InputSampleRate
}

// LiveOpener は LiveBridge 用のセッションオープナーを返します。
func (s *Studio) LiveOpener() pipeline.SessionOpener {
	return func(ctx context.Context) (pipeline.LiveSession, error) {
		session, err := s.ConnectLive(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func userContents(text string) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}}
}

// ResponseText は最初の候補のテキストパートを連結します (思考パートは除きます)。
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// GroundingSources はグラウンディングの Web 引用元を重複なく返します。
func GroundingSources(resp *genai.GenerateContentResponse) []types.Source {
	sources := []types.Source{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return sources
	}
	seen := make(map[string]bool)
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		sources = append(sources, types.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return sources
}

func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData
			}
		}
	}
	return nil
}
