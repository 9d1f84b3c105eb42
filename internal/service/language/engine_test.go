package language

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-session-orchestrator/internal/service/detect"
	detectmock "voice-session-orchestrator/internal/service/detect/mock"
)

type applyRecorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *applyRecorder) apply(language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, language)
	return r.err
}

func (r *applyRecorder) applied() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestAcceptedVerdictSwitchesLanguage(t *testing.T) {
	rec := &applyRecorder{}
	e := NewEngine("s1", detectmock.New(), 0.7, "fr", rec.apply)

	e.resolve(1, detect.Result{Language: "en", Confidence: 0.85}, nil, time.Millisecond)

	if e.Current() != "en" {
		t.Errorf("expected current language en, got %q", e.Current())
	}
	if e.Detected() != "en" {
		t.Errorf("expected detected language en, got %q", e.Detected())
	}
	if got := rec.applied(); len(got) != 1 || got[0] != "en" {
		t.Errorf("expected one apply call for en, got %v", got)
	}
}

func TestBelowThresholdKeepsLanguage(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
	}{
		{"below threshold", 0.69},
		{"exactly at threshold", 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &applyRecorder{}
			e := NewEngine("s1", detectmock.New(), 0.7, "fr", rec.apply)

			e.resolve(1, detect.Result{Language: "en", Confidence: tt.confidence}, nil, time.Millisecond)

			if e.Current() != "fr" {
				t.Errorf("expected language to stay fr, got %q", e.Current())
			}
			if len(rec.applied()) != 0 {
				t.Errorf("expected no apply calls, got %v", rec.applied())
			}
		})
	}
}

func TestUnchangedVerdictIsIgnored(t *testing.T) {
	rec := &applyRecorder{}
	e := NewEngine("s1", detectmock.New(), 0.7, "fr", rec.apply)

	e.resolve(1, detect.Result{Language: "fr", Confidence: 0.99}, nil, time.Millisecond)

	if e.Current() != "fr" {
		t.Errorf("expected fr, got %q", e.Current())
	}
	if len(rec.applied()) != 0 {
		t.Errorf("expected no apply calls, got %v", rec.applied())
	}
	if e.Detected() != "" {
		t.Errorf("expected no recorded switch, got %q", e.Detected())
	}
}

func TestStaleVerdictIsDiscarded(t *testing.T) {
	rec := &applyRecorder{}
	e := NewEngine("s1", detectmock.New(), 0.7, "fr", rec.apply)

	// Second submission resolves first and wins.
	e.resolve(2, detect.Result{Language: "es", Confidence: 0.9}, nil, time.Millisecond)
	e.resolve(1, detect.Result{Language: "en", Confidence: 0.95}, nil, time.Millisecond)

	if e.Current() != "es" {
		t.Errorf("expected es to win over stale en, got %q", e.Current())
	}
	if got := rec.applied(); len(got) != 1 || got[0] != "es" {
		t.Errorf("expected single apply for es, got %v", got)
	}
}

func TestDetectionErrorIsSwallowed(t *testing.T) {
	rec := &applyRecorder{}
	e := NewEngine("s1", detectmock.New(), 0.7, "fr", rec.apply)

	e.resolve(1, detect.Result{}, detect.ErrServiceUnavailable, time.Millisecond)

	if e.Current() != "fr" {
		t.Errorf("expected fr after swallowed error, got %q", e.Current())
	}
	if len(rec.applied()) != 0 {
		t.Errorf("expected no apply calls, got %v", rec.applied())
	}
}

func TestApplyErrorDoesNotRevertSwitch(t *testing.T) {
	rec := &applyRecorder{err: errors.New("channel closed")}
	e := NewEngine("s1", detectmock.New(), 0.7, "fr", rec.apply)

	e.resolve(1, detect.Result{Language: "en", Confidence: 0.9}, nil, time.Millisecond)

	if e.Current() != "en" {
		t.Errorf("expected en despite apply error, got %q", e.Current())
	}
}

func TestSubmitEmptyTextIsNoop(t *testing.T) {
	adapter := detectmock.New()
	e := NewEngine("s1", adapter, 0.7, "fr", nil)

	e.Submit(context.Background(), "")
	time.Sleep(20 * time.Millisecond)

	if adapter.Calls() != 0 {
		t.Errorf("expected no adapter calls for empty text, got %d", adapter.Calls())
	}
}

func TestSubmitResolvesAsynchronously(t *testing.T) {
	rec := &applyRecorder{}
	e := NewEngine("s1", detectmock.New(detect.Result{Language: "de", Confidence: 0.95}), 0.7, "en", rec.apply)

	e.Submit(context.Background(), "guten tag")

	deadline := time.Now().Add(time.Second)
	for e.Current() != "de" {
		if time.Now().After(deadline) {
			t.Fatalf("language never switched, still %q", e.Current())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
