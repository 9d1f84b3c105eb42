// Package history accumulates the conversation transcript and ships the
// post-call record to the backend.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"voice-session-orchestrator/internal/models"
	"voice-session-orchestrator/internal/observability/logging"
)

// Recorder collects transcript fragments during a session and posts the
// assembled record when the call ends. Delivery is best-effort: failures are
// logged and never surfaced to the session.
type Recorder struct {
	client  *http.Client
	baseURL string
	path    string

	mu        sync.Mutex
	fragments []models.TranscriptFragment
}

// NewRecorder creates a recorder targeting the backend's conversation log endpoint.
func NewRecorder(baseURL, path string, timeout time.Duration) *Recorder {
	return &Recorder{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		path:    path,
	}
}

// Append records one transcript fragment in arrival order.
func (r *Recorder) Append(f models.TranscriptFragment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragments = append(r.fragments, f)
}

// Reset discards the collected transcript ahead of a new session.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragments = nil
}

// Fragments returns a copy of the transcript collected so far.
func (r *Recorder) Fragments() []models.TranscriptFragment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TranscriptFragment(nil), r.fragments...)
}

// Flush posts the final record. The error is logged, never returned; a lost
// record must not fail the teardown path.
func (r *Recorder) Flush(ctx context.Context, record models.ConversationRecord) {
	record.Transcript = r.Fragments()
	log := logging.WithSession(record.SessionID)

	payload, err := json.Marshal(record)
	if err != nil {
		log.Error().Err(err).Msg("conversation record not serializable")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+r.path, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("conversation record request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("conversation record delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("conversation record rejected")
		return
	}

	log.Info().Int("fragments", len(record.Transcript)).Msg("conversation record delivered")
}
