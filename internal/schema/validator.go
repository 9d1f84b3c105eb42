// Package schema enforces the structural rules of inbound control messages
// before they reach session handling.
package schema

import (
	"errors"
	"fmt"

	"voice-session-orchestrator/internal/service/control"
)

// ErrInvalidMessage marks a message that violates the protocol shape.
var ErrInvalidMessage = errors.New("invalid control message")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the per-type required fields. Unknown types pass; the
// caller decides whether to ignore them.
func (v *Validator) Validate(m control.Message) error {
	if m.Type == "" {
		return fmt.Errorf("missing type tag: %w", ErrInvalidMessage)
	}

	switch m.Type {
	case control.TypeSessionUpdate, control.TypeSessionCreated:
		if m.Session == nil {
			return fmt.Errorf("%s without session payload: %w", m.Type, ErrInvalidMessage)
		}
	case control.TypeConversationItemCreated:
		if m.Item == nil {
			return fmt.Errorf("%s without item: %w", m.Type, ErrInvalidMessage)
		}
		if m.Item.Role != control.RoleUser && m.Item.Role != control.RoleAssistant {
			return fmt.Errorf("item with unknown role %q: %w", m.Item.Role, ErrInvalidMessage)
		}
	case control.TypeResponseAudioDelta:
		if m.Delta == "" {
			return fmt.Errorf("%s without delta: %w", m.Type, ErrInvalidMessage)
		}
	case control.TypeError:
		if m.Error == nil {
			return fmt.Errorf("%s without error payload: %w", m.Type, ErrInvalidMessage)
		}
	}
	return nil
}
