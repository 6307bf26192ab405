// Package live implements the Bubble Tea view that follows one generation
// session while it streams.
package live

import "deckstream/internal/domain"

// EventBusMsg wraps a domain.Event from the EventBus subscription.
type EventBusMsg struct {
	Event domain.Event
}

// DoneMsg reports that the session finished; the program quits on it.
type DoneMsg struct {
	Result domain.SessionResult
	Err    error
}
