// Package mock provides a synthetic capture source for testing and demos
// without a physical microphone.
package mock

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"voice-session-orchestrator/internal/service/media"
)

// Source implements media.Source with generated PCM audio.
type Source struct {
	// FailWith, when set, makes Open fail with this error.
	// Use media.ErrPermissionDenied / media.ErrDeviceUnavailable in tests.
	FailWith error

	// ToneHz is the frequency of the generated sine tone.
	ToneHz float64
}

// New creates a mock capture source producing a 440Hz tone.
func New() *Source {
	return &Source{ToneHz: 440}
}

// NewFailing creates a mock source whose Open always fails with err.
func NewFailing(err error) *Source {
	return &Source{FailWith: err}
}

// Open returns a reader producing an endless sine tone at the constraint's
// sample rate, paced roughly in real time.
func (s *Source) Open(ctx context.Context, c media.Constraints) (io.ReadCloser, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	tone := s.ToneHz
	if tone <= 0 {
		tone = 440
	}

	return &toneReader{
		ctx:        ctx,
		sampleRate: c.SampleRateHz,
		toneHz:     tone,
	}, nil
}

type toneReader struct {
	ctx        context.Context
	mu         sync.Mutex
	closed     bool
	sampleRate int
	toneHz     float64
	phase      float64
	lastRead   time.Time
}

func (r *toneReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.EOF
	}
	if err := r.ctx.Err(); err != nil {
		return 0, io.EOF
	}

	// Pace reads to approximate a live device (max one 20ms frame per call).
	frameSamples := r.sampleRate / 50
	if frameSamples <= 0 {
		frameSamples = 160
	}
	if !r.lastRead.IsZero() {
		if wait := 20*time.Millisecond - time.Since(r.lastRead); wait > 0 {
			time.Sleep(wait)
		}
	}
	r.lastRead = time.Now()

	n := frameSamples * 2
	if n > len(p) {
		n = len(p) - len(p)%2
	}

	step := 2 * math.Pi * r.toneHz / float64(r.sampleRate)
	for i := 0; i+1 < n; i += 2 {
		sample := int16(8000 * math.Sin(r.phase))
		p[i] = byte(sample)
		p[i+1] = byte(sample >> 8)
		r.phase += step
	}
	return n, nil
}

func (r *toneReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
