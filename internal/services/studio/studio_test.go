package studio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/gemini/geminitest"
	"workspace-live-go/internal/media"
	"workspace-live-go/internal/metrics"
	"workspace-live-go/internal/pipeline"
	"workspace-live-go/internal/types"
)

func noWait(context.Context, time.Duration) error { return nil }

func newTestStudio(t *testing.T) (*Studio, *geminitest.Fakes, *media.MemoryStore) {
	t.Helper()
	client, fakes := geminitest.NewClient()
	blobs := media.NewMemoryStore(media.DefaultStoreConfig(), nil)
	cfg := Config{
		Models: DefaultModels(),
		Live:   types.LiveAPIConfig{Voice: "Zephyr"},
	}
	return New(client, blobs, cfg, nil, nil, pipeline.WithWait(noWait)), fakes, blobs
}

func promptOf(call geminitest.ContentCall) string {
	var b strings.Builder
	for _, c := range call.Contents {
		for _, p := range c.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func TestEditCodeStripsFence(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = geminitest.TextResponse("```go\nfunc add(a, b int) int { return a + b }\n```")

	got, err := s.EditCode(context.Background(), "func add(a, b int) int { return a - b }", "fix subtraction", "math.go")
	require.NoError(t, err)
	assert.Equal(t, "func add(a, b int) int { return a + b }", got)
	assert.NotContains(t, got, "```")

	require.Len(t, fakes.Models.ContentCalls, 1)
	call := fakes.Models.ContentCalls[0]
	assert.Equal(t, "gemini-3-pro-preview", call.Model)
	prompt := promptOf(call)
	assert.Contains(t, prompt, "go developer")
	assert.Contains(t, prompt, `"math.go"`)
	assert.Contains(t, prompt, "Instruction: fix subtraction")
}

func TestEditCodeFallsBackToOriginal(t *testing.T) {
	const original = "print('hi')"

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
	}{
		{name: "provider error", err: errors.New("503 unavailable")},
		{name: "empty response", resp: &genai.GenerateContentResponse{}},
		{name: "nested fence", resp: geminitest.TextResponse("here you go:\n```python\nprint('hello')\n```\nand more")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fakes, _ := newTestStudio(t)
			fakes.Models.Response = tt.resp
			fakes.Models.Err = tt.err

			got, err := s.EditCode(context.Background(), original, "greet", "hello.py")
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestEditCodeFenceShapes(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want string
	}{
		{name: "info string", resp: "```go title=\"main.go\"\npackage main\n```", want: "package main"},
		{name: "single line", resp: "```x := 1```", want: "x := 1"},
		{name: "crlf", resp: "```go\r\npackage main\r\n```\r\n", want: "package main"},
		{name: "empty single line", resp: "``````", want: "x := 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fakes, _ := newTestStudio(t)
			fakes.Models.Response = geminitest.TextResponse(tt.resp)

			got, err := s.EditCode(context.Background(), "x := 0", "rewrite", "main.go")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplainAndFixUseFixedInstructions(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = geminitest.TextResponse("x := 1")

	_, err := s.ExplainCode(context.Background(), "x := 1", "main.go")
	require.NoError(t, err)
	_, err = s.FixBugs(context.Background(), "x := 1", "main.go")
	require.NoError(t, err)

	require.Len(t, fakes.Models.ContentCalls, 2)
	assert.Contains(t, promptOf(fakes.Models.ContentCalls[0]), ExplainInstruction)
	assert.Contains(t, promptOf(fakes.Models.ContentCalls[1]), FixBugsInstruction)
}

func TestChatReturnsGroundingSources(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	resp := geminitest.TextResponse("It is sunny.")
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://weather.example/a", Title: "Weather A"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://weather.example/a", Title: "Weather A"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://weather.example/b", Title: "Weather B"}},
			{},
		},
	}
	fakes.Models.Response = resp

	got, err := s.Chat(context.Background(), "weather today?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", got.Text)
	assert.Equal(t, []types.Source{
		{URI: "https://weather.example/a", Title: "Weather A"},
		{URI: "https://weather.example/b", Title: "Weather B"},
	}, got.Sources)

	call := fakes.Models.ContentCalls[0]
	assert.Equal(t, "gemini-2.5-flash", call.Model)
	require.NotNil(t, call.Config)
	require.Len(t, call.Config.Tools, 1)
	assert.NotNil(t, call.Config.Tools[0].GoogleSearch)
}

func TestChatWithoutGroundingHasEmptySources(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = geminitest.TextResponse("hello")

	got, err := s.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.NotNil(t, got.Sources)
	assert.Empty(t, got.Sources)
}

func TestGenerateImageForwardsConfig(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Here is your image"},
				{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: []byte{0x89, 0x50, 0x4E, 0x47}}},
			}},
		}},
	}

	got, err := s.GenerateImage(context.Background(), "a red circle", "1:1", "1K")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw==", got)

	require.Len(t, fakes.Models.ContentCalls, 1)
	call := fakes.Models.ContentCalls[0]
	assert.Equal(t, "gemini-3-pro-image-preview", call.Model)
	assert.Equal(t, "a red circle", promptOf(call))
	require.NotNil(t, call.Config.ImageConfig)
	assert.Equal(t, "1:1", call.Config.ImageConfig.AspectRatio)
	assert.Equal(t, "1K", call.Config.ImageConfig.ImageSize)
}

func TestGenerateImageWithoutImageIsNoResult(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = geminitest.TextResponse("I cannot draw that")

	_, err := s.GenerateImage(context.Background(), "a red circle", "1:1", "1K")
	assert.ErrorIs(t, err, gemini.ErrNoResult)
}

func TestGenerateVideoStoresDownload(t *testing.T) {
	s, fakes, blobs := newTestStudio(t)
	fakes.Models.Operation = &genai.GenerateVideosOperation{Name: "operations/v1"}
	fakes.Operations.Statuses = []*genai.GenerateVideosOperation{
		{Name: "operations/v1"},
		{Name: "operations/v1"},
		geminitest.DoneVideo("operations/v1", "https://files.example/v1.mp4"),
	}
	fakes.Downloader.Data = []byte("mp4-bytes")

	url, err := s.GenerateVideo(context.Background(), "a cat surfing", "16:9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/api/blobs/"))

	assert.Equal(t, 3, fakes.Operations.Calls())
	assert.Equal(t, []string{"https://files.example/v1.mp4"}, fakes.Downloader.URIs)

	require.Len(t, fakes.Models.VideoCalls, 1)
	call := fakes.Models.VideoCalls[0]
	assert.Equal(t, "veo-3.1-fast-generate-preview", call.Model)
	assert.Equal(t, "a cat surfing", call.Prompt)
	assert.Equal(t, "16:9", call.Config.AspectRatio)
	assert.Equal(t, "720p", call.Config.Resolution)
	assert.EqualValues(t, 1, call.Config.NumberOfVideos)

	data, meta, err := blobs.Get(context.Background(), strings.TrimPrefix(url, "/api/blobs/"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4-bytes"), data)
	assert.Equal(t, "video/mp4", meta.MimeType)
}

func TestGenerateVideoEntryPointsShareBookkeeping(t *testing.T) {
	client, fakes := geminitest.NewClient()
	m := metrics.New("studio_test")
	s := New(client, media.NewMemoryStore(media.DefaultStoreConfig(), nil), Config{Models: DefaultModels()}, m, nil, pipeline.WithWait(noWait))
	fakes.Models.Operation = &genai.GenerateVideosOperation{Name: "operations/v2"}
	fakes.Operations.Statuses = []*genai.GenerateVideosOperation{geminitest.DoneVideo("operations/v2", "https://files.example/v2.mp4")}
	fakes.Downloader.Data = []byte("mp4")

	got, err := s.Generate(context.Background(), types.GenerationRequest{
		Prompt:     "waves",
		Capability: types.CapabilityVideo,
		Options:    types.GenerationOptions{AspectRatio: "9:16", Resolution: "1080p"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ResultVideoURI, got.Kind)

	_, err = s.GenerateVideo(context.Background(), "waves", "16:9")
	require.NoError(t, err)

	require.Len(t, fakes.Models.VideoCalls, 2)
	assert.Equal(t, "1080p", fakes.Models.VideoCalls[0].Config.Resolution)
	assert.Equal(t, "720p", fakes.Models.VideoCalls[1].Config.Resolution)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `studio_test_requests_total{capability="video",status="ok"} 2`)

	offline := New(nil, nil, Config{}, nil, nil)
	_, err = offline.Generate(context.Background(), types.GenerationRequest{Capability: types.CapabilityVideo, Prompt: "p"})
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
}

func TestGenerateVideoDoneWithoutURIFails(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Operation = &genai.GenerateVideosOperation{Name: "operations/v2"}
	fakes.Operations.Statuses = []*genai.GenerateVideosOperation{{Name: "operations/v2", Done: true}}

	_, err := s.GenerateVideo(context.Background(), "a cat surfing", "16:9")
	assert.ErrorIs(t, err, gemini.ErrGenerationFailed)
	assert.Zero(t, fakes.Downloader.Calls())
}

func TestGenerateVideoNilOperation(t *testing.T) {
	s, _, _ := newTestStudio(t)

	_, err := s.GenerateVideo(context.Background(), "a cat surfing", "16:9")
	assert.ErrorIs(t, err, gemini.ErrGenerationFailed)
}

func TestAnalyzeImageSendsInlineData(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = geminitest.TextResponse("A red circle on white.")

	got, err := s.AnalyzeImage(context.Background(), "data:image/jpeg;base64,AQID", "describe")
	require.NoError(t, err)
	assert.Equal(t, "A red circle on white.", got)

	parts := fakes.Models.ContentCalls[0].Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Equal(t, []byte{1, 2, 3}, parts[0].InlineData.Data)
	assert.Equal(t, "describe", parts[1].Text)
}

func TestAnalyzeImageDropsMimeParameters(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = geminitest.TextResponse("ok")

	_, err := s.AnalyzeImage(context.Background(), "data:image/png;charset=x;base64,AQID", "describe")
	require.NoError(t, err)
	assert.Equal(t, "image/png", fakes.Models.ContentCalls[0].Contents[0].Parts[0].InlineData.MIMEType)
}

func TestAnalyzeImageRejectsBadDataURI(t *testing.T) {
	s, fakes, _ := newTestStudio(t)

	_, err := s.AnalyzeImage(context.Background(), "data:image/png;base64,", "describe")
	assert.Error(t, err)
	assert.Zero(t, fakes.Models.Calls())
}

func TestMissingCredentialFailsEveryCapability(t *testing.T) {
	s := New(nil, media.NewMemoryStore(media.DefaultStoreConfig(), nil), Config{Models: DefaultModels()}, nil, nil)
	ctx := context.Background()

	code, err := s.EditCode(ctx, "x", "y", "a.go")
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
	assert.Equal(t, "x", code)

	_, err = s.Chat(ctx, "hi")
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
	_, err = s.GenerateImage(ctx, "p", "1:1", "1K")
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
	_, err = s.GenerateVideo(ctx, "p", "16:9")
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
	_, err = s.AnalyzeImage(ctx, "AQID", "p")
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
	_, err = s.ConnectLive(ctx)
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
	_, err = s.LiveOpener()(ctx)
	assert.ErrorIs(t, err, gemini.ErrMissingCredential)
}

func TestLiveInputSampleRate(t *testing.T) {
	s, _, _ := newTestStudio(t)
	assert.Equal(t, 16000, s.LiveInputSampleRate())

	custom := New(nil, nil, Config{Live: types.LiveAPIConfig{InputSampleRate: 24000}}, nil, nil)
	assert.Equal(t, 24000, custom.LiveInputSampleRate())
}

func TestConnectLiveUsesLiveModel(t *testing.T) {
	s, fakes, _ := newTestStudio(t)

	session, err := s.ConnectLive(context.Background())
	require.NoError(t, err)
	defer session.Close()

	assert.Equal(t, "gemini-2.5-flash-native-audio-preview-09-2025", fakes.Connector.Model)
	require.NotNil(t, fakes.Connector.Config)
	assert.Equal(t, []genai.Modality{genai.ModalityAudio}, fakes.Connector.Config.ResponseModalities)

	ev := <-session.Events()
	assert.Equal(t, types.SessionOpened, ev.Kind)
}

func TestGenerateDispatchesByCapability(t *testing.T) {
	s, fakes, _ := newTestStudio(t)
	fakes.Models.Response = geminitest.TextResponse("answer")

	got, err := s.Generate(context.Background(), types.GenerationRequest{Prompt: "q", Capability: types.CapabilityChat})
	require.NoError(t, err)
	assert.Equal(t, types.GenerationResult{Kind: types.ResultText, Value: "answer"}, got)

	got, err = s.Generate(context.Background(), types.GenerationRequest{
		Prompt:     "what is this",
		Capability: types.CapabilityAnalyze,
		Options:    types.GenerationOptions{ImageDataURI: "AQID"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ResultAnalysisText, got.Kind)

	_, err = s.Generate(context.Background(), types.GenerationRequest{Capability: types.CapabilityLive})
	assert.Error(t, err)
}
