package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/metrics"
	"workspace-live-go/internal/types"
)

const (
	// DefaultPollInterval は動画オペレーションの状態確認の間隔です。
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxPollAttempts は状態確認の上限回数です (5秒間隔で10分)。
	DefaultMaxPollAttempts = 120
)

// WaitFunc は d だけ待機します。ctx がキャンセルされた場合はそのエラーを返します。
type WaitFunc func(ctx context.Context, d time.Duration) error

// VideoPoller は非同期の動画生成ジョブを完了または失敗までポーリングします。
//
//	Submitted -> Polling -> {Done, Failed}
type VideoPoller struct {
	operations  gemini.Operations
	interval    time.Duration
	maxAttempts int
	wait        WaitFunc
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// PollerOption は VideoPoller の設定を変更します。
type PollerOption func(*VideoPoller)

// WithInterval はポーリング間隔を設定します。
func WithInterval(d time.Duration) PollerOption {
	return func(p *VideoPoller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts は状態確認の上限回数を設定します。
func WithMaxAttempts(n int) PollerOption {
	return func(p *VideoPoller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithWait は待機関数を差し替えます。
func WithWait(wait WaitFunc) PollerOption {
	return func(p *VideoPoller) {
		if wait != nil {
			p.wait = wait
		}
	}
}

// WithMetrics はメトリクスを設定します。
func WithMetrics(m *metrics.Metrics) PollerOption {
	return func(p *VideoPoller) { p.metrics = m }
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *VideoPoller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewVideoPoller は新しい VideoPoller を作成します。
func NewVideoPoller(operations gemini.Operations, opts ...PollerOption) *VideoPoller {
	p := &VideoPoller{
		operations:  operations,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxPollAttempts,
		wait:        sleep,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval はポーリング間隔を返します。
func (p *VideoPoller) Interval() time.Duration {
	return p.interval
}

// Poll は op が完了するまで一定間隔で状態を再取得します。
// 完了して結果 URI があれば Done、結果がなければ ErrGenerationFailed で終了します。
// 上限回数に達した場合は ErrPollExhausted、ctx がキャンセルされた場合はそのエラーを返します。
func (p *VideoPoller) Poll(ctx context.Context, op *genai.GenerateVideosOperation) (*types.VideoOperation, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: no operation returned", gemini.ErrGenerationFailed)
	}

	logger := p.logger.With("operation", op.Name)
	attempts := 0
	for !op.Done {
		if attempts >= p.maxAttempts {
			logger.Warn("動画オペレーションのポーリング上限に達しました", "attempts", attempts)
			return nil, fmt.Errorf("%w after %d attempts", gemini.ErrPollExhausted, attempts)
		}
		if err := p.wait(ctx, p.interval); err != nil {
			return nil, err
		}

		attempts++
		p.metrics.IncVideoPoll()
		next, err := p.operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, fmt.Errorf("動画オペレーションの取得に失敗: %w", err)
		}
		if next == nil {
			return nil, fmt.Errorf("%w: empty operation status", gemini.ErrGenerationFailed)
		}
		op = next
		logger.Debug("動画オペレーションを確認しました", "attempt", attempts, "done", op.Done)
	}

	result := ToVideoOperation(op)
	if result.Err != "" {
		return result, fmt.Errorf("%w: %s", gemini.ErrGenerationFailed, result.Err)
	}
	if result.ResultURI == "" {
		return result, fmt.Errorf("%w: operation completed without a video", gemini.ErrGenerationFailed)
	}

	logger.Info("動画オペレーションが完了しました", "attempts", attempts)
	return result, nil
}

// ToVideoOperation は genai のオペレーションを VideoOperation に変換します。
func ToVideoOperation(op *genai.GenerateVideosOperation) *types.VideoOperation {
	out := &types.VideoOperation{Name: op.Name, Done: op.Done}
	if len(op.Error) > 0 {
		if msg, ok := op.Error["message"].(string); ok && msg != "" {
			out.Err = msg
		} else {
			out.Err = fmt.Sprint(op.Error)
		}
	}
	if op.Response != nil {
		for _, v := range op.Response.GeneratedVideos {
			if v != nil && v.Video != nil && v.Video.URI != "" {
				out.ResultURI = v.Video.URI
				break
			}
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
