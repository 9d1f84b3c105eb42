package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-session-orchestrator/internal/service/detect"
)

func TestDetectSuccess(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detected_language": "fr",
			"confidence":        0.91,
		})
	}))
	defer server.Close()

	a := New(server.URL, "/v1/language/detect", 5*time.Second)
	result, err := a.Detect(context.Background(), "bonjour tout le monde", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Language != "fr" {
		t.Errorf("expected language fr, got %q", result.Language)
	}
	if result.Confidence != 0.91 {
		t.Errorf("expected confidence 0.91, got %f", result.Confidence)
	}
	if gotBody["text"] != "bonjour tout le monde" {
		t.Errorf("unexpected request text: %q", gotBody["text"])
	}
	if gotBody["preference"] != "en" {
		t.Errorf("unexpected request preference: %q", gotBody["preference"])
	}
}

func TestDetectServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a := New(server.URL, "/v1/language/detect", 5*time.Second)
	_, err := a.Detect(context.Background(), "hello", "en")
	if !errors.Is(err, detect.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestDetectMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	a := New(server.URL, "/v1/language/detect", 5*time.Second)
	_, err := a.Detect(context.Background(), "hello", "en")
	if !errors.Is(err, detect.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestDetectMissingLanguage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"confidence": 0.4})
	}))
	defer server.Close()

	a := New(server.URL, "/v1/language/detect", 5*time.Second)
	_, err := a.Detect(context.Background(), "hello", "en")
	if !errors.Is(err, detect.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestDetectUnreachableHost(t *testing.T) {
	a := New("http://127.0.0.1:1", "/v1/language/detect", 500*time.Millisecond)
	_, err := a.Detect(context.Background(), "hello", "en")
	if !errors.Is(err, detect.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}
