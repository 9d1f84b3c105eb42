// Package mock provides a scripted language detection adapter for testing
// without a backend. Results are returned in order; the last one repeats.
package mock

import (
	"context"
	"sync"

	"voice-session-orchestrator/internal/service/detect"
)

// DefaultResults provides sample detection verdicts for simulation.
var DefaultResults = []detect.Result{
	{Language: "en", Confidence: 0.55},
	{Language: "en", Confidence: 0.82},
	{Language: "fr", Confidence: 0.91},
}

// Adapter implements detect.Adapter with scripted responses.
type Adapter struct {
	mu      sync.Mutex
	results []detect.Result
	next    int
	calls   int

	// FailWith, when set, makes every Detect call return the error.
	FailWith error
}

// New creates a scripted adapter. With no results it uses DefaultResults.
func New(results ...detect.Result) *Adapter {
	if len(results) == 0 {
		results = DefaultResults
	}
	return &Adapter{results: results}
}

// Detect returns the next scripted result.
func (a *Adapter) Detect(ctx context.Context, text, preference string) (detect.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if a.FailWith != nil {
		return detect.Result{}, a.FailWith
	}

	r := a.results[a.next]
	if a.next < len(a.results)-1 {
		a.next++
	}
	return r, nil
}

// Calls reports how many times Detect has been invoked.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
