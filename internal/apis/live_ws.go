package apis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"workspace-live-go/internal/audio"
	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/types"
)

const (
	liveWriteTimeout  = 5 * time.Second
	liveMaxFrameBytes = 1 << 20
	liveFrameBuffer   = 16
)

// liveFrame はブラウザとやり取りする JSON テキストフレームです。
type liveFrame struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Samples    string `json:"samples,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Text       string `json:"text,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// handleLive はブラウザのマイク入力とスピーカー出力を Live セッションに中継します。
//
//	client -> server: バイナリ (float32 LE のマイクサンプル), テキスト {"type":"stop"}
//	server -> client: opened / audio / transcript / closed の JSON テキスト
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: errorDetail{Code: "forbidden", Message: "origin is not allowed"}})
		return
	}
	if s.bridge.Active() {
		s.writeError(w, r, gemini.ErrSessionActive)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket へのアップグレードに失敗しました", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveMaxFrameBytes)

	sock := newLiveSocket(conn)
	go sock.readLoop()

	closedSent := false
	notify := func(ev types.LiveEvent, transcript string) {
		switch ev.Kind {
		case types.SessionOpened:
			sock.write(liveFrame{Type: "opened"})
		case types.TranscriptDelta:
			sock.write(liveFrame{Type: "transcript", Delta: ev.Text, Text: transcript})
		case types.SessionClosed:
			closedSent = true
			sock.write(liveFrame{Type: "closed", Reason: ev.Reason})
		}
	}

	err = s.bridge.Run(r.Context(), sock, sock, notify)
	if !closedSent {
		reason := "stopped"
		if err != nil {
			reason = err.Error()
		}
		sock.write(liveFrame{Type: "closed", Reason: reason})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("ライブ音声の中継が異常終了しました", "error", err)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(liveWriteTimeout))
}

// liveSocket は WebSocket を pipeline.Capture と pipeline.Playback として扱います。
type liveSocket struct {
	conn    *websocket.Conn
	frames  chan []float32
	stopped chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

func newLiveSocket(conn *websocket.Conn) *liveSocket {
	return &liveSocket{
		conn:    conn,
		frames:  make(chan []float32, liveFrameBuffer),
		stopped: make(chan struct{}),
	}
}

// readLoop は受信したマイクサンプルを frames に流します。stop・切断・読み込みエラーで終了します。
func (s *liveSocket) readLoop() {
	defer close(s.frames)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			samples, err := audio.Float32Samples(data)
			if err != nil || len(samples) == 0 {
				continue
			}
			select {
			case s.frames <- samples:
			case <-s.stopped:
				return
			}
		case websocket.TextMessage:
			var msg liveFrame
			if json.Unmarshal(data, &msg) == nil && msg.Type == "stop" {
				return
			}
		}
	}
}

func (s *liveSocket) Read(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, io.EOF
	case samples, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return samples, nil
	}
}

func (s *liveSocket) Play(_ context.Context, samples []float32, sampleRate int) error {
	return s.write(liveFrame{
		Type:       "audio",
		SampleRate: sampleRate,
		Samples:    base64.StdEncoding.EncodeToString(audio.Float32Bytes(samples)),
	})
}

// Close は受信を止めます。Capture と Playback の両方から呼ばれます。
func (s *liveSocket) Close() error {
	s.once.Do(func() {
		close(s.stopped)
		_ = s.conn.SetReadDeadline(time.Now())
	})
	return nil
}

func (s *liveSocket) write(frame liveFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return s.conn.WriteJSON(frame)
}
