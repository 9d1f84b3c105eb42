// Package backend implements language detection against the trusted backend's
// detection endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voice-session-orchestrator/internal/service/detect"
)

// Adapter implements detect.Adapter over HTTPS.
type Adapter struct {
	client  *http.Client
	baseURL string
	path    string
}

// New creates a backend detection adapter.
func New(baseURL, path string, timeout time.Duration) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		path:    path,
	}
}

type detectRequest struct {
	Text       string `json:"text"`
	Preference string `json:"preference,omitempty"`
}

type detectResponse struct {
	DetectedLanguage string  `json:"detected_language"`
	Confidence       float64 `json:"confidence"`
}

// Detect posts the transcript text and returns the provider's verdict.
// All transport and decoding failures map to detect.ErrServiceUnavailable.
func (a *Adapter) Detect(ctx context.Context, text, preference string) (detect.Result, error) {
	payload, err := json.Marshal(detectRequest{Text: text, Preference: preference})
	if err != nil {
		return detect.Result{}, fmt.Errorf("encode detection request: %w", detect.ErrServiceUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+a.path, bytes.NewReader(payload))
	if err != nil {
		return detect.Result{}, fmt.Errorf("build detection request: %w", detect.ErrServiceUnavailable)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return detect.Result{}, fmt.Errorf("%v: %w", err, detect.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return detect.Result{}, fmt.Errorf("detection endpoint returned status %d: %w", resp.StatusCode, detect.ErrServiceUnavailable)
	}

	var body detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return detect.Result{}, fmt.Errorf("malformed detection response: %w", detect.ErrServiceUnavailable)
	}
	if body.DetectedLanguage == "" {
		return detect.Result{}, fmt.Errorf("detection response missing language: %w", detect.ErrServiceUnavailable)
	}

	return detect.Result{
		Language:   body.DetectedLanguage,
		Confidence: body.Confidence,
	}, nil
}
