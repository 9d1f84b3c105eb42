// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the session orchestrator.
type Config struct {
	Service       ServiceConfig
	Backend       BackendConfig
	Realtime      RealtimeConfig
	Media         MediaConfig
	Detection     DetectionConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies this service instance.
type ServiceConfig struct {
	Name     string
	Env      string
	HTTPPort string
}

// BackendConfig points at the trusted backend that issues credentials,
// performs language detection and records conversation history.
type BackendConfig struct {
	BaseURL        string
	AgentID        string
	CredentialPath string
	DetectionPath  string
	HistoryPath    string
	RequestTimeout time.Duration
}

// RealtimeConfig configures the remote voice endpoint.
type RealtimeConfig struct {
	BaseURL            string
	Model              string
	Transport          string // "webrtc" or "websocket"
	Instructions       string
	NegotiationTimeout time.Duration
	PlaybackRetryDelay time.Duration
}

// MediaConfig configures local audio capture.
type MediaConfig struct {
	Source           string // "ffmpeg" or "mock"
	Device           string
	SampleRateHz     int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// DetectionConfig configures the mid-call language adaptation loop.
type DetectionConfig struct {
	Enabled             bool
	ConfidenceThreshold float64
	RequestTimeout      time.Duration
	DefaultLanguage     string
}

// KafkaConfig configures the transcript/lifecycle analytics publisher.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicSession    string
	Principal       string
}

// ObservabilityConfig configures logging and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel    string
	MetricsPort string
}

// Load reads configuration from environment variables.
// Invalid values fall back to defaults rather than failing startup.
func Load() *Config {
	serviceName := envOrDefault("SERVICE_NAME", "voice-session-orchestrator")

	return &Config{
		Service: ServiceConfig{
			Name:     serviceName,
			Env:      envOrDefault("ENV", "production"),
			HTTPPort: envOrDefault("HTTP_PORT", "8080"),
		},
		Backend: BackendConfig{
			BaseURL:        envOrDefault("BACKEND_BASE_URL", "http://localhost:3000"),
			AgentID:        envOrDefault("AGENT_ID", "default"),
			CredentialPath: envOrDefault("BACKEND_CREDENTIAL_PATH", "/v1/conversation/token"),
			DetectionPath:  envOrDefault("BACKEND_DETECTION_PATH", "/v1/language/detect"),
			HistoryPath:    envOrDefault("BACKEND_HISTORY_PATH", "/v1/conversation/log"),
			RequestTimeout: envOrDefaultDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
		},
		Realtime: RealtimeConfig{
			BaseURL:            envOrDefault("REALTIME_BASE_URL", "https://api.openai.com/v1/realtime"),
			Model:              envOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
			Transport:          envOrDefault("REALTIME_TRANSPORT", "webrtc"),
			Instructions:       envOrDefault("REALTIME_INSTRUCTIONS", ""),
			NegotiationTimeout: envOrDefaultDuration("REALTIME_NEGOTIATION_TIMEOUT", 30*time.Second),
			PlaybackRetryDelay: envOrDefaultDuration("REALTIME_PLAYBACK_RETRY_DELAY", 250*time.Millisecond),
		},
		Media: MediaConfig{
			Source:           envOrDefault("MEDIA_SOURCE", "mock"),
			Device:           envOrDefault("MEDIA_DEVICE", ""),
			SampleRateHz:     envOrDefaultInt("MEDIA_SAMPLE_RATE_HZ", 8000),
			Channels:         envOrDefaultInt("MEDIA_CHANNELS", 1),
			EchoCancellation: envOrDefaultBool("MEDIA_ECHO_CANCELLATION", true),
			NoiseSuppression: envOrDefaultBool("MEDIA_NOISE_SUPPRESSION", true),
		},
		Detection: DetectionConfig{
			Enabled:             envOrDefaultBool("DETECTION_ENABLED", true),
			ConfidenceThreshold: envOrDefaultFloat("DETECTION_CONFIDENCE_THRESHOLD", 0.7),
			RequestTimeout:      envOrDefaultDuration("DETECTION_REQUEST_TIMEOUT", 5*time.Second),
			DefaultLanguage:     envOrDefault("DETECTION_DEFAULT_LANGUAGE", "en"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultSlice("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "conversation.transcript"),
			TopicSession:    envOrDefault("KAFKA_TOPIC_SESSION", "conversation.session"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", serviceName),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
