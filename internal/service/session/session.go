package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-session-orchestrator/internal/models"
	"voice-session-orchestrator/internal/service/control"
	"voice-session-orchestrator/internal/service/credential"
	"voice-session-orchestrator/internal/service/language"
	"voice-session-orchestrator/internal/service/media"
	"voice-session-orchestrator/internal/service/transport"
)

// ErrSessionActive is returned by Start while another session is in flight.
var ErrSessionActive = errors.New("a session is already active")

// Handle is the established transport as seen by the orchestrator.
type Handle interface {
	States() <-chan transport.State
	Errors() <-chan error
	Teardown()
}

// AudioPlayer is implemented by transports that carry remote audio on the
// control channel rather than on a media track.
type AudioPlayer interface {
	WriteAudio(data []byte) error
}

// CredentialSource issues the per-call ephemeral credential.
type CredentialSource interface {
	RequestCredential(ctx context.Context, sessionID, languagePreference string) (*credential.Credential, error)
}

// Negotiator establishes the realtime transport for a session.
type Negotiator interface {
	Negotiate(ctx context.Context, sessionID string, stream *media.Stream, cred *credential.Credential, ch *control.Channel) (Handle, error)
}

type transportNegotiator interface {
	Negotiate(ctx context.Context, sessionID string, stream *media.Stream, cred *credential.Credential, ch *control.Channel) (*transport.Handle, error)
}

// WrapNegotiator adapts a concrete transport negotiator, WebRTC or
// websocket, to the Negotiator interface consumed here.
func WrapNegotiator(n transportNegotiator) Negotiator {
	return negotiatorAdapter{n}
}

type negotiatorAdapter struct {
	n transportNegotiator
}

func (a negotiatorAdapter) Negotiate(ctx context.Context, sessionID string, stream *media.Stream, cred *credential.Credential, ch *control.Channel) (Handle, error) {
	h, err := a.n.Negotiate(ctx, sessionID, stream, cred, ch)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Recorder accumulates the transcript and ships the post-call record.
type Recorder interface {
	Reset()
	Append(f models.TranscriptFragment)
	Flush(ctx context.Context, record models.ConversationRecord)
}

// Notifier receives user-facing session notifications. Implementations must
// not block; they are called from orchestrator goroutines.
type Notifier interface {
	// OnStateChange is called on every lifecycle transition.
	OnStateChange(sessionID string, state State)

	// OnError is called at most once per session, with the terminal error.
	OnError(sessionID string, err error)

	// OnTranscript is called for each transcribed turn, in arrival order.
	OnTranscript(f models.TranscriptFragment)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OnStateChange(string, State)            {}
func (NopNotifier) OnError(string, error)                  {}
func (NopNotifier) OnTranscript(models.TranscriptFragment) {}

// Session is the working state of one conversation attempt. All fields past
// the lifecycle are populated progressively as setup advances. StartedAt is
// zero until the session reaches Active; call duration counts from there.
type Session struct {
	ID        string
	StartedAt time.Time

	lifecycle *Lifecycle

	stream  *media.Stream
	cred    *credential.Credential
	channel *control.Channel
	handle  Handle
	engine  *language.Engine

	done      chan struct{}
	closeOnce sync.Once
	errOnce   sync.Once
}

func newSession() *Session {
	id := uuid.New().String()
	return &Session{
		ID:        id,
		lifecycle: NewLifecycle(id),
		done:      make(chan struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// Language returns the active conversation language, or "" before negotiation.
func (s *Session) Language() string {
	if s.engine == nil {
		return ""
	}
	return s.engine.Current()
}
