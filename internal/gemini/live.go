package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"workspace-live-go/internal/audio"
	"workspace-live-go/internal/types"
)

// eventBuffer はイベントチャネルのバッファ長です。
const eventBuffer = 64

// LiveSession は Gemini Live API との1つの双方向音声セッションです。
// 作成者が所有し、Close で破棄します。受信したメッセージは Events に順番通り届きます。
type LiveSession struct {
	ID string

	conn       LiveConn
	config     types.LiveAPIConfig
	events     chan types.LiveEvent
	done       chan struct{}
	logger     *slog.Logger
	mu         sync.Mutex
	closed     bool
	closeOnce  sync.Once
	closeError error
}

// OpenLiveSession は Live API に接続し、受信ループを開始します。
func OpenLiveSession(ctx context.Context, connector LiveConnector, config types.LiveAPIConfig, logger *slog.Logger) (*LiveSession, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := connector.Connect(ctx, config.Model, ConnectConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	s := &LiveSession{
		ID:     uuid.NewString(),
		conn:   conn,
		config: config,
		events: make(chan types.LiveEvent, eventBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	s.logger = logger.With("live_session_id", s.ID)
	s.events <- types.LiveEvent{Kind: types.SessionOpened}

	go s.receiveLoop()

	s.logger.Info("Live session opened", "model", config.Model, "voice", config.Voice)
	return s, nil
}

// ConnectConfig は音声のみの応答・固定ボイス・出力文字起こしを有効にした接続設定を作ります。
func ConnectConfig(config types.LiveAPIConfig) *genai.LiveConnectConfig {
	modalities := config.ResponseModalities
	if len(modalities) == 0 {
		modalities = []genai.Modality{genai.ModalityAudio}
	}

	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       modalities,
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if config.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.Voice},
			},
		}
	}
	if config.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: config.SystemInstruction}},
		}
	}
	return cfg
}

// Send はリアルタイム入力として音声フレームを送信します。送信はキャプチャ順に直列化されます。
func (s *LiveSession) Send(data types.LiveStreamData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	err := s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: data.MimeType, Data: data.Data},
	})
	if err != nil {
		return fmt.Errorf("failed to send realtime input: %w", err)
	}
	return nil
}

// Events はセッションイベントのチャネルを返します。受信ループ終了時に閉じられます。
func (s *LiveSession) Events() <-chan types.LiveEvent {
	return s.events
}

// Close はセッションを閉じます。送信中のデータのフラッシュは行いません。
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.closeError = s.conn.Close()
		s.logger.Info("Live session closed")
	})
	return s.closeError
}

func (s *LiveSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *LiveSession) receiveLoop() {
	defer close(s.events)

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if s.isClosed() {
				// done は閉じているので emit を通さず、空きがあればバッファに積む
				select {
				case s.events <- types.LiveEvent{Kind: types.SessionClosed, Reason: "closed by client"}:
				default:
					s.logger.Debug("Live session closed event dropped; buffer full")
				}
				return
			}
			s.logger.Warn("Live session receive failed", "error", err)
			s.emit(types.LiveEvent{Kind: types.SessionClosed, Reason: err.Error(), Err: err})
			return
		}

		for _, ev := range TranslateMessage(msg, s.config.OutputSampleRate) {
			if !s.emit(ev) {
				return
			}
		}

		if msg.GoAway != nil {
			s.logger.Info("Live session received go-away")
		}
	}
}

func (s *LiveSession) emit(ev types.LiveEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// TranslateMessage は LiveServerMessage から音声フレームと部分テキストのイベントを取り出します。
func TranslateMessage(msg *genai.LiveServerMessage, fallbackRate int) []types.LiveEvent {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	content := msg.ServerContent

	var events []types.LiveEvent
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if blob := part.InlineData; blob != nil && len(blob.Data) > 0 && isAudio(blob.MIMEType) {
				events = append(events, types.LiveEvent{
					Kind:       types.AudioFrameReceived,
					PCM:        blob.Data,
					SampleRate: audio.RateFromMIME(blob.MIMEType, fallbackRate),
				})
			}
			if part.Text != "" && !part.Thought {
				events = append(events, types.LiveEvent{Kind: types.TranscriptDelta, Text: part.Text})
			}
		}
	}
	if t := content.OutputTranscription; t != nil && t.Text != "" {
		events = append(events, types.LiveEvent{Kind: types.TranscriptDelta, Text: t.Text})
	}
	return events
}

func isAudio(mime string) bool {
	return mime == "" || strings.HasPrefix(mime, "audio/")
}
