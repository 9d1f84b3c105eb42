package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voice-session-orchestrator/internal/observability/metrics"
)

func TestMuLawByte(t *testing.T) {
	tests := []struct {
		name string
		in   int16
		want byte
	}{
		{"silence", 0, 0xFF},
		{"max positive", 32767, 0x80},
		{"max negative", -32768, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := muLawByte(tt.in); got != tt.want {
				t.Errorf("muLawByte(%d) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeMuLawHalvesLength(t *testing.T) {
	pcm := make([]byte, 320)
	out := encodeMuLaw(pcm)
	if len(out) != 160 {
		t.Errorf("expected 160 bytes, got %d", len(out))
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateNew, "new"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateDisconnected, "disconnected"},
		{StateFailed, "failed"},
		{StateClosed, "closed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestExchangeSDPSuccess(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("v=0\r\nanswer"))
	}))
	defer server.Close()

	n := NewNegotiator(Config{
		BaseURL:            server.URL,
		Model:              "realtime-voice",
		NegotiationTimeout: 5 * time.Second,
	}, &mockSink{})

	answer, err := n.exchangeSDP(context.Background(), "v=0\r\noffer", "ek_secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "v=0\r\nanswer" {
		t.Errorf("unexpected answer: %q", answer)
	}
	if gotAuth != "Bearer ek_secret" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotContentType != "application/sdp" {
		t.Errorf("unexpected content type: %q", gotContentType)
	}
}

func TestExchangeSDPRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	n := NewNegotiator(Config{BaseURL: server.URL, NegotiationTimeout: 5 * time.Second}, &mockSink{})

	_, err := n.exchangeSDP(context.Background(), "offer", "bad")
	if !errors.Is(err, ErrNegotiationFailed) {
		t.Errorf("expected ErrNegotiationFailed, got %v", err)
	}
}

func TestExchangeSDPEmptyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNegotiator(Config{BaseURL: server.URL, NegotiationTimeout: 5 * time.Second}, &mockSink{})

	_, err := n.exchangeSDP(context.Background(), "offer", "secret")
	if !errors.Is(err, ErrNegotiationFailed) {
		t.Errorf("expected ErrNegotiationFailed, got %v", err)
	}
}

func TestEnsurePlaybackRetriesOnce(t *testing.T) {
	sink := &mockSink{failures: 1}
	h := newTestHandle(sink)

	w, err := h.ensurePlayback(context.Background(), 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil {
		t.Fatal("expected a playback writer")
	}
	if sink.opens != 2 {
		t.Errorf("expected 2 open attempts, got %d", sink.opens)
	}
}

func TestEnsurePlaybackGivesUpAfterOneRetry(t *testing.T) {
	sink := &mockSink{failures: 3}
	h := newTestHandle(sink)

	_, err := h.ensurePlayback(context.Background(), 8000)
	if !errors.Is(err, ErrPlaybackFailed) {
		t.Errorf("expected ErrPlaybackFailed, got %v", err)
	}
	if sink.opens != 2 {
		t.Errorf("expected exactly 2 open attempts, got %d", sink.opens)
	}
}

func TestEnsurePlaybackReusesOpenWriter(t *testing.T) {
	sink := &mockSink{}
	h := newTestHandle(sink)

	first, err := h.ensurePlayback(context.Background(), 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := h.ensurePlayback(context.Background(), 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the same writer on repeated calls")
	}
	if sink.opens != 1 {
		t.Errorf("expected a single open, got %d", sink.opens)
	}
}

func TestWriteAudioIgnoredOnPeerHandle(t *testing.T) {
	sink := &mockSink{}
	h := newTestHandle(sink)

	if err := h.WriteAudio([]byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.opens != 0 {
		t.Errorf("expected no sink open on a non-websocket handle, got %d", sink.opens)
	}
}

func TestWriteAudioOpensSinkOnWebsocketHandle(t *testing.T) {
	sink := &mockSink{}
	h := newTestHandle(sink)
	h.wsAudio = true
	h.sampleRate = 8000

	if err := h.WriteAudio([]byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.opens != 1 {
		t.Errorf("expected one sink open, got %d", sink.opens)
	}
}

func TestWSEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		model   string
		want    string
		wantErr bool
	}{
		{"https to wss", "https://api.example.com/v1/realtime", "realtime-voice", "wss://api.example.com/v1/realtime?model=realtime-voice", false},
		{"http to ws", "http://localhost:8080/v1/realtime", "", "ws://localhost:8080/v1/realtime", false},
		{"ws passthrough", "wss://api.example.com/v1/realtime", "", "wss://api.example.com/v1/realtime", false},
		{"unsupported scheme", "ftp://api.example.com", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wsEndpoint(tt.baseURL, tt.model)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("wsEndpoint(%q, %q) = %q, want %q", tt.baseURL, tt.model, got, tt.want)
			}
		})
	}
}

func TestStartCaptureRunsPumpOnce(t *testing.T) {
	h := newTestHandle(&mockSink{})
	ran := make(chan struct{}, 2)
	h.capture = func() { ran <- struct{}{} }

	h.StartCapture()
	h.StartCapture()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("capture pump never started")
	}
	select {
	case <-ran:
		t.Error("capture pump started twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStartCaptureWithoutPumpIsNoop(t *testing.T) {
	h := newTestHandle(&mockSink{})
	h.StartCapture()
}

func TestHandleTeardownIdempotent(t *testing.T) {
	h := newTestHandle(&mockSink{})
	h.Teardown()
	h.Teardown()

	select {
	case <-h.stop:
	default:
		t.Error("expected stop channel closed after teardown")
	}
}

func newTestHandle(sink Sink) *Handle {
	return &Handle{
		states:     make(chan State, 8),
		errs:       make(chan error, 4),
		stop:       make(chan struct{}),
		logger:     zerolog.Nop(),
		metrics:    metrics.DefaultMetrics,
		sink:       sink,
		retryDelay: time.Millisecond,
	}
}

type mockSink struct {
	opens    int
	failures int
}

func (m *mockSink) Open(ctx context.Context, sampleRateHz int) (io.WriteCloser, error) {
	m.opens++
	if m.opens <= m.failures {
		return nil, errors.New("device busy")
	}
	return nopWriteCloser{}, nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }
