package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars
	envVars := []string{
		"SERVICE_NAME", "ENV", "HTTP_PORT",
		"BACKEND_BASE_URL", "BACKEND_REQUEST_TIMEOUT",
		"REALTIME_BASE_URL", "REALTIME_MODEL", "REALTIME_TRANSPORT",
		"REALTIME_NEGOTIATION_TIMEOUT", "REALTIME_PLAYBACK_RETRY_DELAY",
		"MEDIA_SOURCE", "MEDIA_SAMPLE_RATE_HZ", "MEDIA_ECHO_CANCELLATION",
		"DETECTION_ENABLED", "DETECTION_CONFIDENCE_THRESHOLD", "DETECTION_DEFAULT_LANGUAGE",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL",
		"LOG_LEVEL", "METRICS_PORT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Name != "voice-session-orchestrator" {
		t.Errorf("expected default service name 'voice-session-orchestrator', got %s", cfg.Service.Name)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}

	if cfg.Backend.CredentialPath != "/v1/conversation/token" {
		t.Errorf("expected default credential path, got %s", cfg.Backend.CredentialPath)
	}
	if cfg.Backend.RequestTimeout != 10*time.Second {
		t.Errorf("expected default backend timeout 10s, got %v", cfg.Backend.RequestTimeout)
	}

	if cfg.Realtime.Transport != "webrtc" {
		t.Errorf("expected default transport 'webrtc', got %s", cfg.Realtime.Transport)
	}
	if cfg.Realtime.NegotiationTimeout != 30*time.Second {
		t.Errorf("expected default negotiation timeout 30s, got %v", cfg.Realtime.NegotiationTimeout)
	}
	if cfg.Realtime.PlaybackRetryDelay != 250*time.Millisecond {
		t.Errorf("expected default playback retry delay 250ms, got %v", cfg.Realtime.PlaybackRetryDelay)
	}

	if cfg.Media.Source != "mock" {
		t.Errorf("expected default media source 'mock', got %s", cfg.Media.Source)
	}
	if cfg.Media.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.Media.SampleRateHz)
	}
	if cfg.Media.EchoCancellation != true {
		t.Errorf("expected default echo cancellation true, got %v", cfg.Media.EchoCancellation)
	}

	if cfg.Detection.Enabled != true {
		t.Errorf("expected detection enabled by default, got %v", cfg.Detection.Enabled)
	}
	if cfg.Detection.ConfidenceThreshold != 0.7 {
		t.Errorf("expected default confidence threshold 0.7, got %f", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Detection.DefaultLanguage != "en" {
		t.Errorf("expected default language 'en', got %s", cfg.Detection.DefaultLanguage)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.TopicTranscript != "conversation.transcript" {
		t.Errorf("expected default transcript topic, got %s", cfg.Kafka.TopicTranscript)
	}

	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVICE_NAME", "custom-orchestrator")
	os.Setenv("BACKEND_BASE_URL", "https://backend.example.com")
	os.Setenv("BACKEND_REQUEST_TIMEOUT", "3s")
	os.Setenv("REALTIME_TRANSPORT", "websocket")
	os.Setenv("REALTIME_NEGOTIATION_TIMEOUT", "45s")
	os.Setenv("MEDIA_SOURCE", "ffmpeg")
	os.Setenv("MEDIA_SAMPLE_RATE_HZ", "16000")
	os.Setenv("MEDIA_ECHO_CANCELLATION", "false")
	os.Setenv("DETECTION_ENABLED", "false")
	os.Setenv("DETECTION_CONFIDENCE_THRESHOLD", "0.85")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	defer func() {
		for _, v := range []string{
			"SERVICE_NAME", "BACKEND_BASE_URL", "BACKEND_REQUEST_TIMEOUT",
			"REALTIME_TRANSPORT", "REALTIME_NEGOTIATION_TIMEOUT",
			"MEDIA_SOURCE", "MEDIA_SAMPLE_RATE_HZ", "MEDIA_ECHO_CANCELLATION",
			"DETECTION_ENABLED", "DETECTION_CONFIDENCE_THRESHOLD",
			"KAFKA_ENABLED", "KAFKA_BROKERS",
		} {
			os.Unsetenv(v)
		}
	}()

	cfg := Load()

	if cfg.Service.Name != "custom-orchestrator" {
		t.Errorf("expected service name 'custom-orchestrator', got %s", cfg.Service.Name)
	}
	if cfg.Backend.BaseURL != "https://backend.example.com" {
		t.Errorf("expected custom backend URL, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RequestTimeout != 3*time.Second {
		t.Errorf("expected backend timeout 3s, got %v", cfg.Backend.RequestTimeout)
	}
	if cfg.Realtime.Transport != "websocket" {
		t.Errorf("expected transport 'websocket', got %s", cfg.Realtime.Transport)
	}
	if cfg.Realtime.NegotiationTimeout != 45*time.Second {
		t.Errorf("expected negotiation timeout 45s, got %v", cfg.Realtime.NegotiationTimeout)
	}
	if cfg.Media.Source != "ffmpeg" {
		t.Errorf("expected media source 'ffmpeg', got %s", cfg.Media.Source)
	}
	if cfg.Media.SampleRateHz != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.Media.SampleRateHz)
	}
	if cfg.Media.EchoCancellation != false {
		t.Errorf("expected echo cancellation false, got %v", cfg.Media.EchoCancellation)
	}
	if cfg.Detection.Enabled != false {
		t.Errorf("expected detection disabled, got %v", cfg.Detection.Enabled)
	}
	if cfg.Detection.ConfidenceThreshold != 0.85 {
		t.Errorf("expected confidence threshold 0.85, got %f", cfg.Detection.ConfidenceThreshold)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker1:9092" || cfg.Kafka.Brokers[1] != "broker2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("MEDIA_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("MEDIA_ECHO_CANCELLATION", "invalid")
	os.Setenv("DETECTION_CONFIDENCE_THRESHOLD", "invalid")
	os.Setenv("REALTIME_NEGOTIATION_TIMEOUT", "invalid")

	defer func() {
		os.Unsetenv("MEDIA_SAMPLE_RATE_HZ")
		os.Unsetenv("MEDIA_ECHO_CANCELLATION")
		os.Unsetenv("DETECTION_CONFIDENCE_THRESHOLD")
		os.Unsetenv("REALTIME_NEGOTIATION_TIMEOUT")
	}()

	cfg := Load()

	if cfg.Media.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Media.SampleRateHz)
	}
	if cfg.Media.EchoCancellation != true {
		t.Errorf("expected default echo cancellation on invalid input, got %v", cfg.Media.EchoCancellation)
	}
	if cfg.Detection.ConfidenceThreshold != 0.7 {
		t.Errorf("expected default threshold on invalid input, got %f", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Realtime.NegotiationTimeout != 30*time.Second {
		t.Errorf("expected default negotiation timeout on invalid input, got %v", cfg.Realtime.NegotiationTimeout)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServiceName(t *testing.T) {
	os.Setenv("SERVICE_NAME", "my-orchestrator")
	os.Unsetenv("KAFKA_PRINCIPAL")

	defer os.Unsetenv("SERVICE_NAME")

	cfg := Load()

	if cfg.Kafka.Principal != "my-orchestrator" {
		t.Errorf("expected Kafka principal to fall back to service name, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
