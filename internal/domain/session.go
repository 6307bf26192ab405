package domain

import (
	"encoding/json"
	"fmt"
)

// SessionKind selects which document a generation session produces.
type SessionKind string

const (
	KindOutline SessionKind = "outline"
	KindDeck    SessionKind = "deck"
)

// ParseSessionKind converts user input into a SessionKind.
func ParseSessionKind(s string) (SessionKind, error) {
	switch SessionKind(s) {
	case KindOutline, KindDeck:
		return SessionKind(s), nil
	case "presentation":
		return KindDeck, nil
	default:
		return "", fmt.Errorf("session kind %q: %w", s, ErrInvalidInput)
	}
}

// SessionState is the lifecycle state of a generation session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateConnecting SessionState = "connecting"
	StateStreaming  SessionState = "streaming"
	StateComplete   SessionState = "complete"
	StateClosed     SessionState = "closed"
	StateErrored    SessionState = "errored"
)

// Terminal reports whether no further transitions are possible from s.
func (s SessionState) Terminal() bool {
	return s == StateComplete || s == StateClosed || s == StateErrored
}

// Snapshot is the value exposed to the UI after every processed event.
type Snapshot struct {
	SessionID          string           `json:"session_id,omitempty"`
	PresentationID     string           `json:"presentation_id,omitempty"`
	Kind               SessionKind      `json:"kind,omitempty"`
	State              SessionState     `json:"state"`
	Document           *PartialDocument `json:"document,omitempty"`
	ActiveSlideIndex   int              `json:"active_slide_index"`
	HighestActiveIndex int              `json:"highest_active_index"`
	Status             string           `json:"status,omitempty"`
	Error              string           `json:"error,omitempty"`
}

// SessionResult is handed to the completion callback once a session ends.
type SessionResult struct {
	Snapshot
	// Presentation is the producer's complete payload, verbatim, when one arrived.
	Presentation json.RawMessage `json:"presentation,omitempty"`
	// Degenerate is set when no plausible document shape was ever detected and
	// the raw text was wrapped into a single slide.
	Degenerate bool `json:"degenerate,omitempty"`
}
