package media

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"voice-session-orchestrator/internal/observability/metrics"
)

// Stream is an acquired local audio stream. It is exclusively owned by the
// guard that produced it; callers read PCM from it and must hand it back via
// Guard.Release on every exit path.
type Stream struct {
	mu          sync.Mutex
	rc          io.ReadCloser
	constraints Constraints
	released    bool
	metrics     *metrics.Metrics
}

// Constraints returns the constraints the stream was acquired with.
func (s *Stream) Constraints() Constraints {
	return s.constraints
}

// Read reads raw PCM bytes from the capture source.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	rc := s.rc
	released := s.released
	s.mu.Unlock()

	if released || rc == nil {
		return 0, io.EOF
	}
	n, err := rc.Read(p)
	if n > 0 && s.metrics != nil {
		s.metrics.RecordCapture(n)
	}
	return n, err
}

// close stops the underlying source. Idempotent.
func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if s.rc != nil {
		if err := s.rc.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing capture source")
		}
		s.rc = nil
	}
}

// Guard acquires and releases local audio capture.
// Release is idempotent and always safe to call, including on a nil stream
// or a stream whose source already stopped.
type Guard struct {
	source  Source
	metrics *metrics.Metrics
}

// NewGuard creates a capture guard over the given source.
func NewGuard(source Source) *Guard {
	return &Guard{
		source:  source,
		metrics: metrics.DefaultMetrics,
	}
}

// Acquire starts local capture under the given constraints.
// Fails with ErrPermissionDenied or ErrDeviceUnavailable.
func (g *Guard) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	rc, err := g.source.Open(ctx, c)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("sampleRateHz", c.SampleRateHz).
		Int("channels", c.Channels).
		Bool("echoCancellation", c.EchoCancellation).
		Msg("Local audio capture acquired")

	return &Stream{
		rc:          rc,
		constraints: c,
		metrics:     g.metrics,
	}, nil
}

// Release stops the stream and frees the capture device. Idempotent.
func (g *Guard) Release(s *Stream) {
	if s == nil {
		return
	}
	s.close()
}
