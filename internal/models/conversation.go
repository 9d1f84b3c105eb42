// Package models defines the data structures for conversation events.
package models

// TranscriptFragment represents one transcribed turn of the conversation.
type TranscriptFragment struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Role      string `json:"role"` // "user" or "assistant"
	Text      string `json:"text"`
	Language  string `json:"language,omitempty"`
}

// SessionEvent represents a session lifecycle transition.
type SessionEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

// ConversationMetadata carries client context attached to the post-call record.
type ConversationMetadata struct {
	ClientVersion      string   `json:"clientVersion"`
	SupportedLanguages []string `json:"supportedLanguages,omitempty"`
	PriorityLanguages  []string `json:"priorityLanguages,omitempty"`
	DetectionEnabled   bool     `json:"detectionEnabled"`
}

// ConversationRecord is the post-hoc record sent to the backend when a call ends.
type ConversationRecord struct {
	SessionID        string               `json:"sessionId"`
	AgentID          string               `json:"agentId"`
	Transcript       []TranscriptFragment `json:"transcript"`
	DurationSeconds  float64              `json:"durationSeconds"`
	FinalLanguage    string               `json:"finalLanguage"`
	DetectedLanguage string               `json:"detectedLanguage,omitempty"`
	Metadata         ConversationMetadata `json:"metadata"`
}
