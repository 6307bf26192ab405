package session

import (
	"fmt"

	"deckstream/internal/domain"
)

// transitions lists the states reachable from each state. Terminal states
// have no entry.
var transitions = map[domain.SessionState][]domain.SessionState{
	domain.StateIdle:       {domain.StateConnecting},
	domain.StateConnecting: {domain.StateStreaming, domain.StateClosed, domain.StateErrored},
	domain.StateStreaming:  {domain.StateComplete, domain.StateClosed, domain.StateErrored},
}

// canTransition reports whether from -> to is allowed.
func canTransition(from, to domain.SessionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition validates from -> to.
func transition(from, to domain.SessionState) error {
	if !canTransition(from, to) {
		return fmt.Errorf("session state %s -> %s: %w", from, to, domain.ErrInvalidInput)
	}
	return nil
}

// endReason records why a run ended; it decides the terminal state, the
// error reported by Wait, and whether the completion callback fires.
type endReason int

const (
	endComplete endReason = iota
	endClosing
	endEOF
	endTimeout
	endCancel
	endStreamError
	endTransport
)

func (r endReason) state() domain.SessionState {
	switch r {
	case endComplete:
		return domain.StateComplete
	case endStreamError, endTransport:
		return domain.StateErrored
	default:
		return domain.StateClosed
	}
}

// notifies reports whether the completion callback fires for this ending.
// Errors and caller cancellation report through Wait and the snapshot only.
func (r endReason) notifies() bool {
	switch r {
	case endComplete, endClosing, endEOF, endTimeout:
		return true
	}
	return false
}

// finalParse reports whether the ending carries an authoritative document.
func (r endReason) finalParse() bool {
	return r == endComplete || r == endClosing || r == endEOF
}

func (r endReason) String() string {
	switch r {
	case endComplete:
		return "complete"
	case endClosing:
		return "closing"
	case endEOF:
		return "eof"
	case endTimeout:
		return "inactivity_timeout"
	case endCancel:
		return "cancelled"
	case endStreamError:
		return "stream_error"
	default:
		return "transport_error"
	}
}
