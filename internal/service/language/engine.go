// Package language adapts the active conversation language from detection
// verdicts on user transcript fragments.
package language

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"voice-session-orchestrator/internal/observability/logging"
	"voice-session-orchestrator/internal/observability/metrics"
	"voice-session-orchestrator/internal/service/detect"
)

// Outcomes recorded per detection verdict.
const (
	outcomeAccepted       = "accepted"
	outcomeBelowThreshold = "below_threshold"
	outcomeUnchanged      = "unchanged"
	outcomeStale          = "stale"
	outcomeError          = "error"
)

// Engine runs best-effort language detection on user speech and switches the
// active language when a verdict clears the confidence threshold. Detection
// failures never disturb the session.
type Engine struct {
	adapter   detect.Adapter
	threshold float64
	apply     func(language string) error
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	sessionID string

	seq uint64 // issued submission counter

	mu       sync.Mutex
	current  string
	detected string // last accepted verdict, empty if none
	lastDone uint64 // highest sequence already resolved
}

// NewEngine creates an engine starting from the initial language. The apply
// callback pushes the switch to the remote endpoint; its error is logged only.
func NewEngine(sessionID string, adapter detect.Adapter, threshold float64, initial string, apply func(string) error) *Engine {
	return &Engine{
		adapter:   adapter,
		threshold: threshold,
		apply:     apply,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithSession(sessionID),
		sessionID: sessionID,
		current:   initial,
	}
}

// Current returns the active conversation language.
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Detected returns the last accepted detection verdict, or "" if the session
// never switched.
func (e *Engine) Detected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detected
}

// Submit schedules detection for a user transcript fragment. It returns
// immediately; the verdict is resolved on a background goroutine.
func (e *Engine) Submit(ctx context.Context, text string) {
	if text == "" {
		return
	}
	seq := atomic.AddUint64(&e.seq, 1)

	go func() {
		start := time.Now()
		res, err := e.adapter.Detect(ctx, text, e.Current())
		e.resolve(seq, res, err, time.Since(start))
	}()
}

// resolve applies the gating rules for one verdict. Verdicts resolve in
// submission order only: anything older than the newest resolved submission
// is discarded as stale.
func (e *Engine) resolve(seq uint64, res detect.Result, err error, latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seq <= e.lastDone {
		e.metrics.RecordDetection(outcomeStale, latency.Seconds())
		e.logger.Debug().Uint64("seq", seq).Msg("discarding stale detection result")
		return
	}
	e.lastDone = seq

	if err != nil {
		e.metrics.RecordDetection(outcomeError, latency.Seconds())
		e.logger.Warn().Err(err).Uint64("seq", seq).Msg("language detection failed, continuing")
		return
	}

	log := logging.WithDetection(e.sessionID, res.Language, seq)

	// A switch requires confidence strictly above the threshold.
	if res.Confidence <= e.threshold {
		e.metrics.RecordDetection(outcomeBelowThreshold, latency.Seconds())
		log.Debug().Float64("confidence", res.Confidence).Msg("verdict below threshold")
		return
	}
	if res.Language == e.current {
		e.metrics.RecordDetection(outcomeUnchanged, latency.Seconds())
		return
	}

	previous := e.current
	e.current = res.Language
	e.detected = res.Language
	e.metrics.RecordDetection(outcomeAccepted, latency.Seconds())
	e.metrics.RecordLanguageSwitch()
	log.Info().
		Str("previous", previous).
		Float64("confidence", res.Confidence).
		Msg("switching conversation language")

	if e.apply != nil {
		if err := e.apply(res.Language); err != nil {
			log.Warn().Err(err).Msg("language update could not be delivered")
		}
	}
}
