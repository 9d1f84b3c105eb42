// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_session"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsSuccess prometheus.Counter
	SessionsFailed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Negotiation metrics
	NegotiationLatency prometheus.Histogram
	PlaybackRetries    prometheus.Counter

	// Control channel metrics
	ControlMessages *prometheus.CounterVec

	// Language detection metrics
	DetectionRequests *prometheus.CounterVec
	LanguageSwitches  prometheus.Counter
	DetectionLatency  prometheus.Histogram

	// Media metrics
	CaptureBytes  prometheus.Counter
	CaptureFrames prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		}),
		SessionsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_success_total",
			Help:      "Total number of sessions that reached Connected and closed cleanly",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of failed sessions",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of connected sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		// Negotiation metrics
		NegotiationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "negotiation_latency_seconds",
			Help:      "Time from offer creation to transport connected",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		PlaybackRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_retries_total",
			Help:      "Total number of first-frame playback retries",
		}),

		// Control channel metrics
		ControlMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Total control-channel messages by type and direction",
		}, []string{"type", "direction"}),

		// Language detection metrics
		DetectionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_requests_total",
			Help:      "Total language-detection requests by outcome",
		}, []string{"outcome"}),
		LanguageSwitches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_switches_total",
			Help:      "Total number of mid-call language switches applied",
		}),
		DetectionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_latency_seconds",
			Help:      "Language-detection request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		// Media metrics
		CaptureBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_bytes_total",
			Help:      "Total audio bytes captured from the local source",
		}),
		CaptureFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_total",
			Help:      "Total audio frames captured from the local source",
		}),

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
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(success bool, reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	if durationSeconds > 0 {
		m.SessionDuration.Observe(durationSeconds)
	}
	if success {
		m.SessionsSuccess.Inc()
	} else {
		m.SessionsFailed.WithLabelValues(reason).Inc()
	}
}

// RecordNegotiation records the offer-to-connected latency.
func (m *Metrics) RecordNegotiation(latencySeconds float64) {
	m.NegotiationLatency.Observe(latencySeconds)
}

// RecordPlaybackRetry records a first-frame playback retry.
func (m *Metrics) RecordPlaybackRetry() {
	m.PlaybackRetries.Inc()
}

// RecordControlMessage records a control message sent or received.
func (m *Metrics) RecordControlMessage(msgType, direction string) {
	m.ControlMessages.WithLabelValues(msgType, direction).Inc()
}

// RecordDetection records a language-detection request outcome.
// Outcomes: accepted, below_threshold, unchanged, stale, error.
func (m *Metrics) RecordDetection(outcome string, latencySeconds float64) {
	m.DetectionRequests.WithLabelValues(outcome).Inc()
	if latencySeconds > 0 {
		m.DetectionLatency.Observe(latencySeconds)
	}
}

// RecordLanguageSwitch records an applied mid-call language switch.
func (m *Metrics) RecordLanguageSwitch() {
	m.LanguageSwitches.Inc()
}

// RecordCapture records audio bytes and frames captured.
func (m *Metrics) RecordCapture(bytes int) {
	m.CaptureBytes.Add(float64(bytes))
	m.CaptureFrames.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
