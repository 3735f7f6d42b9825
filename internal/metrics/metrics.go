// Package metrics は生成リクエストとライブセッションの Prometheus メトリクスを保持します。
// nil の *Metrics でもメソッドは安全に呼び出せます。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はアプリケーションのメトリクス一式です。
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	VideoPollsTotal     prometheus.Counter
	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveAudioBytesTotal *prometheus.CounterVec
}

// New は専用の Registry にメトリクスを登録して返します。
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "workspace_live"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of provider requests by capability and status",
			},
			[]string{"capability", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Provider request duration in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"capability"},
		),
		VideoPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_polls_total",
			Help:      "Total number of video operation status checks",
		}),
		LiveSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of open live audio sessions",
		}),
		LiveSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_sessions_total",
				Help:      "Total number of live sessions by outcome",
			},
			[]string{"outcome"},
		),
		LiveAudioBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_audio_bytes_total",
				Help:      "PCM bytes streamed through live sessions",
			},
			[]string{"direction"},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.VideoPollsTotal,
		m.LiveSessionsActive,
		m.LiveSessionsTotal,
		m.LiveAudioBytesTotal,
	)
	return m
}

// Handler は /metrics 用のハンドラを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest は1回のプロバイダ呼び出しを記録します。
func (m *Metrics) ObserveRequest(capability, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(capability, status).Inc()
	m.RequestDuration.WithLabelValues(capability).Observe(d.Seconds())
}

// IncVideoPoll は動画オペレーションの状態確認を1回数えます。
func (m *Metrics) IncVideoPoll() {
	if m == nil {
		return
	}
	m.VideoPollsTotal.Inc()
}

// LiveSessionStarted はライブセッション開始を記録します。
func (m *Metrics) LiveSessionStarted() {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Inc()
}

// LiveSessionEnded はライブセッション終了を記録します。
func (m *Metrics) LiveSessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessionsTotal.WithLabelValues(outcome).Inc()
}

// AddLiveAudioBytes は送受信した PCM バイト数を加算します。direction は in または out です。
func (m *Metrics) AddLiveAudioBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.LiveAudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}
