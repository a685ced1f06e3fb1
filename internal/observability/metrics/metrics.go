// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_live_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram
	SessionState    *prometheus.CounterVec

	// Audio metrics
	AudioFramesReceived  prometheus.Counter
	AudioFramesDropped   *prometheus.CounterVec
	AudioSecondsBuffered prometheus.Counter

	// Window metrics
	WindowsReady      prometheus.Counter
	WindowsDispatched *prometheus.CounterVec
	WindowsSuppressed *prometheus.CounterVec
	WindowsDropped    prometheus.Counter

	// Transcript metrics
	TranscriptsFinal     prometheus.Counter
	OverlapWordsStripped prometheus.Counter

	// STT gateway metrics
	STTLatency *prometheus.HistogramVec
	STTErrors  *prometheus.CounterVec

	// Persistence metrics
	PersistTotal  *prometheus.CounterVec
	PersistErrors *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Transport metrics
	GRPCRequests  *prometheus.CounterVec
	GRPCLatency   *prometheus.HistogramVec
	WSConnections prometheus.Gauge
	WSRejected    *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics with the default
// registerer. Call it once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of transcription sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently registered sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of sessions in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		SessionState: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session lifecycle transitions by target state",
		}, []string{"state"}),

		// Audio metrics
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames accepted into a session buffer",
		}),
		AudioFramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Audio frames discarded before buffering",
		}, []string{"reason"}),
		AudioSecondsBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_seconds_buffered_total",
			Help:      "Seconds of audio appended to session buffers",
		}),

		// Window metrics
		WindowsReady: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_ready_total",
			Help:      "Windows materialised by sliding buffers",
		}),
		WindowsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_dispatched_total",
			Help:      "Windows submitted to the transcription gateway",
		}, []string{"reason"}),
		WindowsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_suppressed_total",
			Help:      "Windows that produced no transcription call or no final",
		}, []string{"reason"}),
		WindowsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_dropped_total",
			Help:      "Queued windows dropped because the gateway fell behind",
		}),

		// Transcript metrics
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcript segments emitted",
		}),
		OverlapWordsStripped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlap_words_stripped_total",
			Help:      "Words removed from new windows as overlap duplicates",
		}),

		// STT metrics
		STTLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Transcription gateway round-trip latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
		}, []string{"provider"}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of transcription gateway errors",
		}, []string{"provider", "error_type"}),

		// Persistence metrics
		PersistTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Final segments handed to persistence sinks",
		}, []string{"sink"}),
		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Persistence sink failures",
		}, []string{"sink"}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Transport metrics
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_latency_seconds",
			Help:      "gRPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Open audio WebSocket connections",
		}),
		WSRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_rejected_total",
			Help:      "WebSocket connections refused before streaming",
		}, []string{"reason"}),
	}
}

// RecordSessionStart records a new session being registered.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session leaving the registry.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordTransition records a lifecycle transition.
func (m *Metrics) RecordTransition(state string) {
	m.SessionState.WithLabelValues(state).Inc()
}

// RecordFrame records an accepted frame and its play time.
func (m *Metrics) RecordFrame(seconds float64) {
	m.AudioFramesReceived.Inc()
	m.AudioSecondsBuffered.Add(seconds)
}

// RecordFrameDropped records a discarded frame.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.AudioFramesDropped.WithLabelValues(reason).Inc()
}

// RecordWindowReady records a materialised window.
func (m *Metrics) RecordWindowReady() {
	m.WindowsReady.Inc()
}

// RecordWindowDispatched records a gateway submission.
func (m *Metrics) RecordWindowDispatched(reason string) {
	m.WindowsDispatched.WithLabelValues(reason).Inc()
}

// RecordWindowSuppressed records a window that yields no final.
func (m *Metrics) RecordWindowSuppressed(reason string) {
	m.WindowsSuppressed.WithLabelValues(reason).Inc()
}

// RecordWindowDropped records a backpressure drop.
func (m *Metrics) RecordWindowDropped() {
	m.WindowsDropped.Inc()
}

// RecordFinalTranscript records an emitted final and the words stripped from it.
func (m *Metrics) RecordFinalTranscript(strippedWords int) {
	m.TranscriptsFinal.Inc()
	if strippedWords > 0 {
		m.OverlapWordsStripped.Add(float64(strippedWords))
	}
}

// RecordSTTCall records a gateway round trip.
func (m *Metrics) RecordSTTCall(provider string, latencySeconds float64) {
	m.STTLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordPersist records a persistence attempt.
func (m *Metrics) RecordPersist(sink string, err error) {
	m.PersistTotal.WithLabelValues(sink).Inc()
	if err != nil {
		m.PersistErrors.WithLabelValues(sink).Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPC records a completed gRPC call.
func (m *Metrics) RecordGRPC(method, code string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordWSOpen records an accepted WebSocket connection.
func (m *Metrics) RecordWSOpen() {
	m.WSConnections.Inc()
}

// RecordWSClose records a closed WebSocket connection.
func (m *Metrics) RecordWSClose() {
	m.WSConnections.Dec()
}

// RecordWSRejected records a refused connection.
func (m *Metrics) RecordWSRejected(reason string) {
	m.WSRejected.WithLabelValues(reason).Inc()
}
