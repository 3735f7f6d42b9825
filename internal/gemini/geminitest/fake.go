// Package geminitest はテスト用の Gemini API フェイクを提供します。
package geminitest

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"

	"workspace-live-go/internal/gemini"
)

// ContentCall は GenerateContent の呼び出し記録です。
type ContentCall struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// VideoCall は GenerateVideos の呼び出し記録です。
type VideoCall struct {
	Model  string
	Prompt string
	Config *genai.GenerateVideosConfig
}

// Models は gemini.Models のフェイクです。
type Models struct {
	mu sync.Mutex

	// Response と Err は GenerateContent の戻り値です。
	Response *genai.GenerateContentResponse
	Err      error
	// Operation と VideoErr は GenerateVideos の戻り値です。
	Operation *genai.GenerateVideosOperation
	VideoErr  error

	ContentCalls []ContentCall
	VideoCalls   []VideoCall
}

func (m *Models) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ContentCalls = append(m.ContentCalls, ContentCall{Model: model, Contents: contents, Config: config})
	return m.Response, m.Err
}

func (m *Models) GenerateVideos(_ context.Context, model string, prompt string, _ *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VideoCalls = append(m.VideoCalls, VideoCall{Model: model, Prompt: prompt, Config: config})
	return m.Operation, m.VideoErr
}

// Calls は GenerateContent と GenerateVideos の合計呼び出し回数を返します。
func (m *Models) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ContentCalls) + len(m.VideoCalls)
}

// Operations は gemini.Operations のフェイクです。Statuses を順に返し、最後の1件を返し続けます。
type Operations struct {
	mu       sync.Mutex
	Statuses []*genai.GenerateVideosOperation
	Err      error
	calls    int
}

func (o *Operations) GetVideosOperation(_ context.Context, op *genai.GenerateVideosOperation, _ *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.Err != nil {
		return nil, o.Err
	}
	if len(o.Statuses) == 0 {
		return &genai.GenerateVideosOperation{Name: op.Name}, nil
	}
	next := o.Statuses[0]
	if len(o.Statuses) > 1 {
		o.Statuses = o.Statuses[1:]
	}
	return next, nil
}

// Calls は状態確認の回数を返します。
func (o *Operations) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// Downloader は gemini.Downloader のフェイクです。
type Downloader struct {
	mu       sync.Mutex
	Data     []byte
	MimeType string
	Err      error
	URIs     []string
}

func (d *Downloader) Download(_ context.Context, uri string) ([]byte, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.URIs = append(d.URIs, uri)
	return d.Data, d.MimeType, d.Err
}

// Calls はダウンロード回数を返します。
func (d *Downloader) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.URIs)
}

// Conn は gemini.LiveConn のフェイクです。Push したメッセージを Receive で返します。
type Conn struct {
	mu       sync.Mutex
	sent     []genai.LiveRealtimeInput
	messages chan *genai.LiveServerMessage
	closed   chan struct{}
	once     sync.Once
}

// NewConn は新しい Conn を作成します。
func NewConn() *Conn {
	return &Conn{
		messages: make(chan *genai.LiveServerMessage, 32),
		closed:   make(chan struct{}),
	}
}

// Push はサーバーからのメッセージを積みます。
func (c *Conn) Push(msg *genai.LiveServerMessage) {
	c.messages <- msg
}

func (c *Conn) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, input)
	return nil
}

func (c *Conn) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg := <-c.messages:
		return msg, nil
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Sent は送信された入力のコピーを返します。
func (c *Conn) Sent() []genai.LiveRealtimeInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]genai.LiveRealtimeInput(nil), c.sent...)
}

// Closed は Close 済みかどうかを返します。
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Connector は gemini.LiveConnector のフェイクです。
type Connector struct {
	mu     sync.Mutex
	Conn   *Conn
	Err    error
	Model  string
	Config *genai.LiveConnectConfig
}

func (f *Connector) Connect(_ context.Context, model string, config *genai.LiveConnectConfig) (gemini.LiveConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Model = model
	f.Config = config
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Conn, nil
}

// Fakes はフェイク一式です。
type Fakes struct {
	Models     *Models
	Operations *Operations
	Downloader *Downloader
	Connector  *Connector
}

// NewClient はフェイクで構成した gemini.Client を返します。
func NewClient() (*gemini.Client, *Fakes) {
	f := &Fakes{
		Models:     &Models{},
		Operations: &Operations{},
		Downloader: &Downloader{},
		Connector:  &Connector{Conn: NewConn()},
	}
	return &gemini.Client{
		Models:     f.Models,
		Operations: f.Operations,
		Live:       f.Connector,
		Downloader: f.Downloader,
	}, f
}

// TextResponse はテキスト1パートの応答を作成します。
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

// DoneVideo は URI 付きで完了した動画オペレーションを作成します。
func DoneVideo(name, uri string) *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{
		Name: name,
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: uri}}},
		},
	}
}
