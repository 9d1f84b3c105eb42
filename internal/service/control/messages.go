// Package control implements the session control protocol spoken over the
// realtime transport: an ordered, reliable, bidirectional stream of JSON
// messages multiplexed next to the audio.
package control

import "encoding/json"

// Protocol message types.
const (
	TypeSessionUpdate           = "session.update"
	TypeSessionCreated          = "session.created"
	TypeConversationItemCreated = "conversation.item.created"
	TypeResponseAudioDelta      = "response.audio.delta"
	TypeResponseAudioDone       = "response.audio.done"
	TypeInputAudioAppend        = "input_audio_buffer.append"
	TypeError                   = "error"
)

// Roles carried on conversation items.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// SessionConfig is the full session configuration pushed in a session.update.
// Later configuration changes are new session.update messages, not amendments.
type SessionConfig struct {
	Voice         string         `json:"voice,omitempty"`
	Language      string         `json:"language,omitempty"`
	Instructions  string         `json:"instructions,omitempty"`
	TurnDetection *TurnDetection `json:"turn_detection,omitempty"`
}

// ContentPart is one piece of a conversation item's content.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ConversationItem carries one transcribed turn.
type ConversationItem struct {
	ID      string        `json:"id,omitempty"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content,omitempty"`
}

// ErrorPayload carries a server-side error notification. Non-fatal to the
// transport but must be surfaced.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Message is the tagged union for all control-channel traffic.
type Message struct {
	Type    string            `json:"type"`
	Session *SessionConfig    `json:"session,omitempty"`
	Item    *ConversationItem `json:"item,omitempty"`
	Delta   string            `json:"delta,omitempty"`
	Audio   string            `json:"audio,omitempty"`
	Error   *ErrorPayload     `json:"error,omitempty"`
}

// Encode serializes a message for the wire.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire message. The Type tag is preserved even for types this
// client does not understand; unknown types are the caller's concern.
func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// NewSessionUpdate builds a session.update carrying the full configuration.
func NewSessionUpdate(cfg SessionConfig) Message {
	c := cfg
	return Message{Type: TypeSessionUpdate, Session: &c}
}

// UserText extracts the transcribed text of a user turn. Returns false for
// non-items, assistant turns and items without text content.
func (m Message) UserText() (string, bool) {
	if m.Type != TypeConversationItemCreated || m.Item == nil || m.Item.Role != RoleUser {
		return "", false
	}
	for _, part := range m.Item.Content {
		if part.Text != "" {
			return part.Text, true
		}
		if part.Transcript != "" {
			return part.Transcript, true
		}
	}
	return "", false
}

// AssistantText extracts the text of an assistant turn, when present.
func (m Message) AssistantText() (string, bool) {
	if m.Type != TypeConversationItemCreated || m.Item == nil || m.Item.Role != RoleAssistant {
		return "", false
	}
	for _, part := range m.Item.Content {
		if part.Text != "" {
			return part.Text, true
		}
		if part.Transcript != "" {
			return part.Transcript, true
		}
	}
	return "", false
}
