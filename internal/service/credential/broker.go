// Package credential obtains the short-lived access credential and per-call
// agent configuration from the trusted backend.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// Errors returned by the broker.
var (
	// ErrRequestFailed indicates a non-2xx response, a malformed body or an
	// explicit success:false marker from the backend.
	ErrRequestFailed = errors.New("credential request failed")
	// ErrMissingSecret indicates the response lacked the ephemeral secret.
	ErrMissingSecret = errors.New("credential response missing secret")
)

// AgentConfig is the opaque voice/agent configuration issued with a credential.
type AgentConfig struct {
	Voice              string   `json:"voice"`
	Provider           string   `json:"provider"`
	Model              string   `json:"model"`
	SupportedLanguages []string `json:"supportedLanguages"`
	PriorityLanguages  []string `json:"priorityLanguages,omitempty"`
	AutoDetectLanguage bool     `json:"autoDetectLanguage"`
}

// Credential is a short-lived, single-session access token plus agent config.
// It must never be persisted and must not outlive the session that requested it.
type Credential struct {
	Secret string
	Agent  AgentConfig
}

// Broker fetches credentials from the backend. It performs exactly one round
// trip per request and never retries; retry policy belongs to the caller.
type Broker struct {
	client  *http.Client
	baseURL string
	path    string
	agentID string
}

// NewBroker creates a credential broker for the given agent.
func NewBroker(baseURL, path, agentID string, timeout time.Duration) *Broker {
	return &Broker{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		path:    path,
		agentID: agentID,
	}
}

type tokenResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Token   string      `json:"token"`
	Agent   AgentConfig `json:"agent"`
}

// RequestCredential performs one round trip to the backend and returns the
// ephemeral credential scoped to sessionID.
func (b *Broker) RequestCredential(ctx context.Context, sessionID, languagePreference string) (*Credential, error) {
	u, err := url.Parse(b.baseURL + b.path)
	if err != nil {
		return nil, fmt.Errorf("invalid credential endpoint: %w", ErrRequestFailed)
	}
	q := u.Query()
	q.Set("agentId", b.agentID)
	q.Set("sessionId", sessionID)
	q.Set("language", languagePreference)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build credential request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrRequestFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status %d: %w", resp.StatusCode, ErrRequestFailed)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed credential response: %w", ErrRequestFailed)
	}
	if !body.Success {
		return nil, fmt.Errorf("backend rejected request: %s: %w", body.Error, ErrRequestFailed)
	}
	if body.Token == "" {
		return nil, ErrMissingSecret
	}

	log.Debug().
		Str("sessionId", sessionID).
		Str("voice", body.Agent.Voice).
		Str("model", body.Agent.Model).
		Bool("autoDetect", body.Agent.AutoDetectLanguage).
		Msg("Credential issued")

	return &Credential{
		Secret: body.Token,
		Agent:  body.Agent,
	}, nil
}
