package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Session lifecycle.
	EventSessionState     EventType = "session.state"
	EventSessionProgress  EventType = "session.progress"
	EventSessionCompleted EventType = "session.completed"
	EventSessionSaved     EventType = "session.saved"

	// Format anomalies reported by the repairer.
	EventFormatAnomaly EventType = "document.anomaly"

	// Resolution misses; operators watch these to find missing layouts.
	EventLayoutMiss EventType = "layout.miss"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with the current time. A payload that
// fails to marshal is dropped rather than failing the publisher.
func NewEvent(t EventType, sessionID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			ev.Payload = b
		}
	}
	return ev
}

// LayoutMiss is the payload of EventLayoutMiss.
type LayoutMiss struct {
	LayoutID string   `json:"layout_id"`
	Group    string   `json:"group,omitempty"`
	Tried    []string `json:"tried,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
