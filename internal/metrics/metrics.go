package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 客户端运行指标，注册在独立的 registry 上，便于测试中多次创建。
type Metrics struct {
	registry *prometheus.Registry

	// 上行音频
	FramesSent    prometheus.Counter
	FrameSendErrs prometheus.Counter

	// ASR 片段合并结果
	Fragments *prometheus.CounterVec

	// 状态机
	Transitions *prometheus.CounterVec
	Notices     *prometheus.CounterVec
	Answers     *prometheus.CounterVec

	// 远端 HTTP 调用
	RemoteRequests *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec

	// 表情采样
	EmotionSamples prometheus.Counter
}

// New creates all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "interview_audio_frames_sent_total",
			Help: "Total number of PCM16 frames sent upstream",
		}),
		FrameSendErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "interview_audio_frame_send_errors_total",
			Help: "Total number of audio frames that failed to send",
		}),
		Fragments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_asr_fragments_total",
			Help: "ASR fragments by reconciliation outcome",
		}, []string{"outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_state_transitions_total",
			Help: "Session state transitions by target state",
		}, []string{"state"}),
		Notices: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_notices_total",
			Help: "User-visible notices by kind",
		}, []string{"kind"}),
		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_answers_total",
			Help: "Completed answer attempts by result",
		}, []string{"result"}),
		RemoteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_remote_requests_total",
			Help: "Remote HTTP requests by endpoint and result",
		}, []string{"endpoint", "result"}),
		RemoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interview_remote_request_duration_seconds",
			Help:    "Duration of remote HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"endpoint"}),
		EmotionSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "interview_emotion_samples_total",
			Help: "Total number of facial emotion labels collected",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFrameSent counts one upstream audio frame.
func (m *Metrics) RecordFrameSent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.FrameSendErrs.Inc()
		return
	}
	m.FramesSent.Inc()
}

// RecordFragment counts a reconciled ASR fragment.
func (m *Metrics) RecordFragment(outcome string) {
	if m == nil {
		return
	}
	m.Fragments.WithLabelValues(outcome).Inc()
}

// RecordTransition counts a transition into state.
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

// RecordNotice counts a notice of the given kind.
func (m *Metrics) RecordNotice(kind string) {
	if m == nil {
		return
	}
	m.Notices.WithLabelValues(kind).Inc()
}

// RecordAnswer counts an EndAnswer outcome ("submitted" or "empty").
func (m *Metrics) RecordAnswer(result string) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(result).Inc()
}

// RecordRemoteRequest records one HTTP call to the interview service.
func (m *Metrics) RecordRemoteRequest(endpoint string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RemoteRequests.WithLabelValues(endpoint, result).Inc()
	m.RemoteDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordEmotionSample counts one collected emotion label.
func (m *Metrics) RecordEmotionSample() {
	if m == nil {
		return
	}
	m.EmotionSamples.Inc()
}
