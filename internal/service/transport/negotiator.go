package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"voice-session-orchestrator/internal/observability/logging"
	"voice-session-orchestrator/internal/observability/metrics"
	"voice-session-orchestrator/internal/service/control"
	"voice-session-orchestrator/internal/service/credential"
	"voice-session-orchestrator/internal/service/media"
)

var (
	// ErrNegotiationFailed indicates the offer/answer exchange did not complete.
	ErrNegotiationFailed = errors.New("transport negotiation failed")
	// ErrTransportFailed indicates the established connection dropped.
	ErrTransportFailed = errors.New("transport failed")
)

const frameDuration = 20 * time.Millisecond

// Config carries negotiation settings for the realtime endpoint.
type Config struct {
	BaseURL            string
	Model              string
	NegotiationTimeout time.Duration
	PlaybackRetryDelay time.Duration
}

// Negotiator establishes WebRTC connections to the remote voice endpoint.
type Negotiator struct {
	cfg     Config
	client  *http.Client
	sink    Sink
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewNegotiator(cfg Config, sink Sink) *Negotiator {
	return &Negotiator{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.NegotiationTimeout},
		sink:    sink,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("transport"),
	}
}

// Handle is an established transport: the connection carrying the audio and
// control channel, the surfaced connection states, and async failures.
// WebRTC handles own a peer connection and play remote RTP; websocket handles
// play base64 audio deltas fed in through WriteAudio.
type Handle struct {
	pc      *webrtc.PeerConnection
	states  chan State
	errs    chan error
	stop    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
	metrics *metrics.Metrics

	sink       Sink
	retryDelay time.Duration

	wsAudio    bool
	sampleRate int

	capture     func()
	captureOnce sync.Once

	playMu   sync.Mutex
	playback io.WriteCloser
}

// StartCapture begins shipping mic audio upstream. Transports that carry
// audio on the control channel defer the pump until the initial session
// configuration has been sent; for others this is a no-op.
func (h *Handle) StartCapture() {
	h.captureOnce.Do(func() {
		if h.capture != nil {
			go h.capture()
		}
	})
}

// States surfaces connection state transitions. Consumers must drain it.
func (h *Handle) States() <-chan State {
	return h.states
}

// Errors surfaces asynchronous transport failures such as playback errors.
func (h *Handle) Errors() <-chan error {
	return h.errs
}

// Teardown releases the connection and stops all transport goroutines.
// It is idempotent and safe to call on a partially established handle.
func (h *Handle) Teardown() {
	h.once.Do(func() {
		close(h.stop)
		if h.pc != nil {
			if err := h.pc.Close(); err != nil {
				h.logger.Debug().Err(err).Msg("peer connection close")
			}
		}
		h.playMu.Lock()
		if h.playback != nil {
			h.playback.Close()
			h.playback = nil
		}
		h.playMu.Unlock()
		h.logger.Info().Msg("transport released")
	})
}

// WriteAudio plays one decoded audio delta. Only websocket handles carry
// audio this way; on WebRTC handles it is a no-op.
func (h *Handle) WriteAudio(data []byte) error {
	if !h.wsAudio || len(data) == 0 {
		return nil
	}
	w, err := h.ensurePlayback(context.Background(), h.sampleRate)
	if err != nil {
		h.pushError(err)
		return err
	}
	if _, err := w.Write(data); err != nil {
		h.logger.Debug().Err(err).Msg("playback write failed")
		return err
	}
	return nil
}

// ensurePlayback opens the playback sink on first use, retrying exactly once
// after a short delay. This is the only automatic retry in the pipeline.
func (h *Handle) ensurePlayback(ctx context.Context, rate int) (io.WriteCloser, error) {
	h.playMu.Lock()
	defer h.playMu.Unlock()
	if h.playback != nil {
		return h.playback, nil
	}

	w, err := h.sink.Open(ctx, rate)
	if err != nil {
		h.logger.Warn().Err(err).Msg("playback open failed, retrying once")
		h.metrics.RecordPlaybackRetry()
		select {
		case <-time.After(h.retryDelay):
		case <-h.stop:
			return nil, fmt.Errorf("transport released during retry: %w", ErrPlaybackFailed)
		}
		w, err = h.sink.Open(ctx, rate)
		if err != nil {
			return nil, fmt.Errorf("playback retry exhausted: %w", ErrPlaybackFailed)
		}
	}
	h.playback = w
	return w, nil
}

func (h *Handle) pushState(s State) {
	select {
	case h.states <- s:
	default:
		h.logger.Debug().Str("state", s.String()).Msg("state channel full, dropping")
	}
}

func (h *Handle) pushError(err error) {
	select {
	case h.errs <- err:
	default:
	}
}

// Negotiate runs the full offer/answer exchange: local audio track from the
// capture stream, SDP offer posted to the remote endpoint with the session
// secret, answer applied. The control channel is bound to the negotiated data
// channel before the offer is created. The returned handle owns the peer
// connection.
func (n *Negotiator) Negotiate(ctx context.Context, sessionID string, stream *media.Stream, cred *credential.Credential, ch *control.Channel) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.NegotiationTimeout)
	defer cancel()

	start := time.Now()
	log := logging.WithChannel(sessionID, "webrtc")

	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: 8000,
			Channels:  1,
		},
		PayloadType: 0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register codec: %w", ErrNegotiationFailed)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(engine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("peer connection: %w", ErrNegotiationFailed)
	}

	h := &Handle{
		pc:         pc,
		states:     make(chan State, 8),
		errs:       make(chan error, 4),
		stop:       make(chan struct{}),
		logger:     log,
		metrics:    n.metrics,
		sink:       n.sink,
		retryDelay: n.cfg.PlaybackRetryDelay,
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: 8000,
		Channels:  1,
	}, "audio", "microphone")
	if err != nil {
		h.Teardown()
		return nil, fmt.Errorf("local track: %w", ErrNegotiationFailed)
	}
	if _, err := pc.AddTrack(track); err != nil {
		h.Teardown()
		return nil, fmt.Errorf("add track: %w", ErrNegotiationFailed)
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		h.Teardown()
		return nil, fmt.Errorf("data channel: %w", ErrNegotiationFailed)
	}
	control.BindDataChannel(ch, dc)

	pc.OnConnectionStateChange(func(ps webrtc.PeerConnectionState) {
		st := fromPeerState(ps)
		log.Info().Str("state", st.String()).Msg("connection state changed")
		h.pushState(st)
		if st == StateFailed {
			h.pushError(fmt.Errorf("connection entered failed state: %w", ErrTransportFailed))
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go n.playRemote(h, remote)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		h.Teardown()
		return nil, fmt.Errorf("create offer: %w", ErrNegotiationFailed)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		h.Teardown()
		return nil, fmt.Errorf("set local description: %w", ErrNegotiationFailed)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		h.Teardown()
		return nil, fmt.Errorf("candidate gathering timed out: %w", ErrNegotiationFailed)
	}

	answer, err := n.exchangeSDP(ctx, pc.LocalDescription().SDP, cred.Secret)
	if err != nil {
		h.Teardown()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		h.Teardown()
		return nil, fmt.Errorf("set remote description: %w", ErrNegotiationFailed)
	}

	go n.pumpCapture(h, stream, track)

	n.metrics.RecordNegotiation(time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Msg("negotiation complete")
	return h, nil
}

func (n *Negotiator) exchangeSDP(ctx context.Context, offerSDP, secret string) (string, error) {
	endpoint := n.cfg.BaseURL
	if n.cfg.Model != "" {
		endpoint += "?model=" + url.QueryEscape(n.cfg.Model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("build offer request: %w", ErrNegotiationFailed)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post offer: %w", ErrNegotiationFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", ErrNegotiationFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("endpoint returned status %d: %w", resp.StatusCode, ErrNegotiationFailed)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("empty answer: %w", ErrNegotiationFailed)
	}
	return string(body), nil
}

// pumpCapture reads 20ms PCM frames from the capture stream, mu-law encodes
// them, and writes samples to the local track until the stream is released.
func (n *Negotiator) pumpCapture(h *Handle, stream *media.Stream, track *webrtc.TrackLocalStaticSample) {
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
		sample := pionmedia.Sample{Data: encodeMuLaw(frame), Duration: frameDuration}
		if err := track.WriteSample(sample); err != nil {
			h.logger.Debug().Err(err).Msg("track write failed")
			return
		}
	}
}

// playRemote forwards remote track payloads to the playback sink.
func (n *Negotiator) playRemote(h *Handle, remote *webrtc.TrackRemote) {
	rate := int(remote.Codec().ClockRate)
	if rate == 0 {
		rate = 8000
	}

	w, err := h.ensurePlayback(context.Background(), rate)
	if err != nil {
		h.pushError(err)
		return
	}

	for {
		select {
		case <-h.stop:
			return
		default:
		}
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Debug().Err(err).Msg("remote track read ended")
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if _, err := w.Write(pkt.Payload); err != nil {
			h.logger.Debug().Err(err).Msg("playback write failed")
			return
		}
	}
}
