package gateway

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"deckstream/internal/domain"
)

// Version is reported by the status endpoint; set at link time.
var Version = "dev"

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  ServiceStatus `json:"service"`
	Sessions SessionStatus `json:"sessions"`
	Layouts  LayoutStatus  `json:"layouts"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// SessionStatus holds session counts.
type SessionStatus struct {
	Active    int   `json:"active"`
	Tracked   int   `json:"tracked"`
	Started   int64 `json:"started_total"`
	Completed int64 `json:"completed_total"`
	Errored   int64 `json:"errored_total"`
	Closed    int64 `json:"closed_total"`
	Saved     int64 `json:"saved_total"`
}

// LayoutStatus holds registry and resolution info.
type LayoutStatus struct {
	Registered int      `json:"registered"`
	Groups     []string `json:"groups"`
	Misses     int64    `json:"misses_total"`
}

// Metrics counts session events for the status and metrics endpoints.
type Metrics struct {
	SessionsStarted   atomic.Int64
	SessionsCompleted atomic.Int64
	SessionsErrored   atomic.Int64
	SessionsClosed    atomic.Int64
	SessionsSaved     atomic.Int64
	LayoutMisses      atomic.Int64
	FormatAnomalies   atomic.Int64
}

func (m *Metrics) observe(e domain.Event) {
	switch e.Type {
	case domain.EventSessionState:
		if stateOf(e.Payload) == domain.StateConnecting {
			m.SessionsStarted.Add(1)
		}
	case domain.EventSessionCompleted:
		switch stateOf(e.Payload) {
		case domain.StateComplete:
			m.SessionsCompleted.Add(1)
		case domain.StateErrored:
			m.SessionsErrored.Add(1)
		case domain.StateClosed:
			m.SessionsClosed.Add(1)
		}
	case domain.EventSessionSaved:
		m.SessionsSaved.Add(1)
	case domain.EventLayoutMiss:
		m.LayoutMisses.Add(1)
	case domain.EventFormatAnomaly:
		m.FormatAnomalies.Add(1)
	}
}

func stateOf(payload json.RawMessage) domain.SessionState {
	var v struct {
		State domain.SessionState `json:"state"`
	}
	_ = json.Unmarshal(payload, &v)
	return v.State
}

func activeSessions(snaps []domain.Snapshot) int {
	n := 0
	for _, s := range snaps {
		if !s.State.Terminal() && s.State != domain.StateIdle {
			n++
		}
	}
	return n
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snaps := deps.Sessions.List()
		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "deckstream",
				Version:       Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Sessions: SessionStatus{
				Active:    activeSessions(snaps),
				Tracked:   len(snaps),
				Started:   metrics.SessionsStarted.Load(),
				Completed: metrics.SessionsCompleted.Load(),
				Errored:   metrics.SessionsErrored.Load(),
				Closed:    metrics.SessionsClosed.Load(),
				Saved:     metrics.SessionsSaved.Load(),
			},
			Layouts: LayoutStatus{Misses: metrics.LayoutMisses.Load()},
		}
		if deps.Resolver != nil {
			reg := deps.Resolver.Registry()
			resp.Layouts.Registered = reg.Len()
			resp.Layouts.Groups = reg.Groups()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
