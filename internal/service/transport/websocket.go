package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-session-orchestrator/internal/observability/logging"
	"voice-session-orchestrator/internal/observability/metrics"
	"voice-session-orchestrator/internal/service/control"
	"voice-session-orchestrator/internal/service/credential"
	"voice-session-orchestrator/internal/service/media"
)

// WSNegotiator establishes websocket connections to the realtime endpoint.
// It is the fallback for environments where the peer-to-peer transport is
// blocked: mic audio goes up as base64 frames on the control channel, and
// remote audio comes back as base64 deltas played through WriteAudio.
type WSNegotiator struct {
	cfg     Config
	sink    Sink
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewWSNegotiator(cfg Config, sink Sink) *WSNegotiator {
	return &WSNegotiator{
		cfg:     cfg,
		sink:    sink,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("transport"),
	}
}

// Negotiate dials the endpoint, binds the control channel, and starts the
// capture pump. There is no offer/answer exchange; the websocket handshake
// with the session secret is the whole negotiation.
func (n *WSNegotiator) Negotiate(ctx context.Context, sessionID string, stream *media.Stream, cred *credential.Credential, ch *control.Channel) (*Handle, error) {
	start := time.Now()
	log := logging.WithChannel(sessionID, "websocket")

	endpoint, err := wsEndpoint(n.cfg.BaseURL, n.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime endpoint: %w", ErrNegotiationFailed)
	}

	h := &Handle{
		states:     make(chan State, 8),
		errs:       make(chan error, 4),
		stop:       make(chan struct{}),
		logger:     log,
		metrics:    n.metrics,
		sink:       n.sink,
		retryDelay: n.cfg.PlaybackRetryDelay,
		wsAudio:    true,
		sampleRate: stream.Constraints().SampleRateHz,
	}

	// The read loop is the only place a remote disconnect is observed in
	// this mode, so its exit must reach the states/errors channels.
	onClose := func(readErr error) {
		select {
		case <-h.stop:
			return
		default:
		}
		if readErr != nil {
			h.pushError(fmt.Errorf("websocket read failed: %w", ErrTransportFailed))
			h.pushState(StateFailed)
			return
		}
		h.pushState(StateClosed)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Secret)
	if err := control.DialWebSocket(ch, endpoint, header, onClose); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNegotiationFailed)
	}
	h.pushState(StateConnected)

	// Audio frames share the control channel here, so the pump must not run
	// before the initial configuration message goes out.
	h.capture = func() { n.pumpCapture(h, stream, ch) }

	n.metrics.RecordNegotiation(time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Msg("websocket connected")
	return h, nil
}

// pumpCapture reads 20ms PCM frames, mu-law encodes them, and ships them as
// base64 control messages until the stream is released.
func (n *WSNegotiator) pumpCapture(h *Handle, stream *media.Stream, ch *control.Channel) {
	rate := stream.Constraints().SampleRateHz
	frame := make([]byte, rate/50*2)

	for {
		select {
		case <-h.stop:
			return
		default:
		}

		if _, err := io.ReadFull(stream, frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				h.logger.Debug().Err(err).Msg("capture read ended")
			}
			return
		}

		msg := control.Message{
			Type:  control.TypeInputAudioAppend,
			Audio: base64.StdEncoding.EncodeToString(encodeMuLaw(frame)),
		}
		if err := ch.Send(msg); err != nil {
			if errors.Is(err, control.ErrChannelNotOpen) {
				return
			}
			h.pushError(fmt.Errorf("audio send failed: %w", ErrTransportFailed))
			return
		}
	}
}

// wsEndpoint rewrites the configured base URL to its websocket scheme and
// appends the model selector.
func wsEndpoint(baseURL, model string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch {
	case u.Scheme == "https":
		u.Scheme = "wss"
	case u.Scheme == "http":
		u.Scheme = "ws"
	case strings.HasPrefix(u.Scheme, "ws"):
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
