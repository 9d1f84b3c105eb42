// Package session orchestrates the lifecycle of a realtime voice conversation:
// media acquisition, credential fetch, transport negotiation, the active call,
// and deterministic teardown.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateIdle - No session activity yet.
	StateIdle State = iota
	// StateAcquiringMedia - Waiting for microphone access.
	StateAcquiringMedia
	// StateFetchingCredential - Requesting the ephemeral credential.
	StateFetchingCredential
	// StateNegotiating - Offer/answer exchange and channel open in flight.
	StateNegotiating
	// StateActive - Call established, audio and control flowing.
	StateActive
	// StateStopping - Teardown in progress.
	StateStopping
	// StateEnded - Session finished normally. Terminal.
	StateEnded
	// StateFailed - Session aborted on error. Terminal.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiringMedia:
		return "ACQUIRING_MEDIA"
	case StateFetchingCredential:
		return "FETCHING_CREDENTIAL"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateEnded:
		return "ENDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (ENDED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateFailed
}

// ErrInvalidTransition is returned when a lifecycle transition is not allowed.
var ErrInvalidTransition = errors.New("invalid session state transition")

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → ACQUIRING_MEDIA → FETCHING_CREDENTIAL → NEGOTIATING → ACTIVE
//	  │           │                  │                  │           │
//	  └───────────┴──────────────────┴──────────────────┴───────────┴──→ STOPPING → ENDED
//	                                 (any non-terminal state) ──────────→ FAILED
//
// Rules:
//   - The setup pipeline only moves forward, one stage at a time.
//   - STOPPING is reachable from every non-terminal state; teardown must be
//     possible no matter how far setup got.
//   - FAILED is reachable from every non-terminal state.
//   - Terminal states accept no further transitions.
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     State
}

// NewLifecycle creates a new session lifecycle in IDLE state.
func NewLifecycle(sessionId string) *Lifecycle {
	return &Lifecycle{
		sessionId: sessionId,
		state:     StateIdle,
	}
}

// SessionId returns the session ID.
func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsTerminal returns true if the session reached a terminal state.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Advance validates and applies a transition to the next state.
func (l *Lifecycle) Advance(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !canTransition(l.state, next) {
		return fmt.Errorf("%s -> %s: %w", l.state, next, ErrInvalidTransition)
	}
	l.state = next
	return nil
}

func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StateAcquiringMedia:
		return from == StateIdle
	case StateFetchingCredential:
		return from == StateAcquiringMedia
	case StateNegotiating:
		return from == StateFetchingCredential
	case StateActive:
		return from == StateNegotiating
	case StateStopping:
		return true
	case StateEnded:
		return from == StateStopping
	case StateFailed:
		return true
	default:
		return false
	}
}
