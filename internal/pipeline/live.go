package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"workspace-live-go/internal/audio"
	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/metrics"
	"workspace-live-go/internal/types"
)

// LiveSession はブリッジが使うライブセッションの操作です。gemini.LiveSession が満たします。
type LiveSession interface {
	Send(data types.LiveStreamData) error
	Events() <-chan types.LiveEvent
	Close() error
}

// SessionOpener はライブセッションを開きます。
type SessionOpener func(ctx context.Context) (LiveSession, error)

// Capture はマイク入力のサンプルバッファを届いた順に返します。入力の終了時は io.EOF を返します。
type Capture interface {
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// Playback は受信した音声を再生します。
type Playback interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
	Close() error
}

// NotifyFunc はセッションの開始・文字起こし・終了を UI に通知します。
// transcript はその時点までの文字起こし全体です。
type NotifyFunc func(ev types.LiveEvent, transcript string)

var (
	errCaptureEnded = errors.New("capture ended")
	errSessionEnded = errors.New("session ended")
)

// LiveBridge はマイク入力と Live セッションの間で音声を双方向に中継します。
// 同時に開けるセッションは1つだけです。
type LiveBridge struct {
	open       SessionOpener
	sampleRate int
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu         sync.Mutex
	active     bool
	transcript string
}

// NewLiveBridge は新しい LiveBridge を作成します。
func NewLiveBridge(open SessionOpener, sampleRate int, m *metrics.Metrics, logger *slog.Logger) *LiveBridge {
	if logger == nil {
		logger = slog.Default()
	}
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &LiveBridge{
		open:       open,
		sampleRate: sampleRate,
		metrics:    m,
		logger:     logger,
	}
}

// Active はセッションが開いているかどうかを返します。
func (b *LiveBridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Transcript は現在 (または直前) のセッションの文字起こしを返します。
func (b *LiveBridge) Transcript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transcript
}

// Run はセッションを開き、capture が終わるか、セッションが閉じるか、ctx がキャンセルされるまで中継します。
// capture と playback はどの経路で終了しても必ず Close されます。
func (b *LiveBridge) Run(ctx context.Context, capture Capture, playback Playback, notify NotifyFunc) error {
	capture = &onceCapture{Capture: capture}
	playback = &oncePlayback{Playback: playback}
	defer playback.Close()
	defer capture.Close()

	if notify == nil {
		notify = func(types.LiveEvent, string) {}
	}

	if !b.acquire() {
		return gemini.ErrSessionActive
	}
	defer b.release()

	session, err := b.open(ctx)
	if err != nil {
		b.logger.Error("ライブセッションの開始に失敗しました", "error", err)
		return fmt.Errorf("ライブセッションの開始に失敗: %w", err)
	}
	defer session.Close()

	b.metrics.LiveSessionStarted()
	outcome := "closed"
	defer func() { b.metrics.LiveSessionEnded(outcome) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		// ブロック中の Read を解除する
		capture.Close()
		session.Close()
		return nil
	})
	g.Go(func() error { return b.pumpCapture(gctx, capture, session) })
	g.Go(func() error { return b.pumpEvents(gctx, session, playback, notify) })

	err = g.Wait()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errCaptureEnded), errors.Is(err, errSessionEnded):
		return nil
	default:
		outcome = "error"
		return err
	}
}

func (b *LiveBridge) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return false
	}
	b.active = true
	b.transcript = ""
	return true
}

func (b *LiveBridge) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
}

func (b *LiveBridge) appendTranscript(delta string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transcript == "" {
		b.transcript = delta
	} else {
		b.transcript += " " + delta
	}
	return b.transcript
}

// pumpCapture はキャプチャ順にフレームを量子化して送信します。
func (b *LiveBridge) pumpCapture(ctx context.Context, capture Capture, session LiveSession) error {
	mimeType := audio.MIMEType(b.sampleRate)
	for {
		samples, err := capture.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return errCaptureEnded
			}
			return fmt.Errorf("マイク入力の読み込みに失敗: %w", err)
		}
		if len(samples) == 0 {
			continue
		}

		pcm := audio.Encode(samples).Bytes()
		if err := session.Send(types.LiveStreamData{MimeType: mimeType, Data: pcm}); err != nil {
			if errors.Is(err, gemini.ErrSessionClosed) {
				return errSessionEnded
			}
			return err
		}
		b.metrics.AddLiveAudioBytes("in", len(pcm))
	}
}

// pumpEvents はセッションのイベントを届いた順に処理します。再生は前の再生が終わってから行います。
func (b *LiveBridge) pumpEvents(ctx context.Context, session LiveSession, playback Playback, notify NotifyFunc) error {
	events := session.Events()
	for {
		var ev types.LiveEvent
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok = <-events:
		}
		if !ok {
			return errSessionEnded
		}

		switch ev.Kind {
		case types.SessionOpened:
			notify(ev, b.Transcript())

		case types.AudioFrameReceived:
			rate := ev.SampleRate
			if rate <= 0 {
				rate = b.sampleRate
			}
			b.metrics.AddLiveAudioBytes("out", len(ev.PCM))
			if err := playback.Play(ctx, audio.Decode(ev.PCM), rate); err != nil {
				return fmt.Errorf("音声の再生に失敗: %w", err)
			}

		case types.TranscriptDelta:
			notify(ev, b.appendTranscript(ev.Text))

		case types.SessionClosed:
			notify(ev, b.Transcript())
			if ev.Err != nil {
				return fmt.Errorf("ライブセッションが終了しました: %w", ev.Err)
			}
			return errSessionEnded
		}
	}
}

type onceCapture struct {
	Capture
	once sync.Once
	err  error
}

func (c *onceCapture) Close() error {
	c.once.Do(func() { c.err = c.Capture.Close() })
	return c.err
}

type oncePlayback struct {
	Playback
	once sync.Once
	err  error
}

func (p *oncePlayback) Close() error {
	p.once.Do(func() { p.err = p.Playback.Close() })
	return p.err
}
