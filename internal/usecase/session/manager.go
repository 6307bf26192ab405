package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"deckstream/internal/domain"
)

// ControllerFactory builds a Controller with the given extra options.
type ControllerFactory func(opts ...Option) *Controller

const saveTimeout = 30 * time.Second

// Manager keeps exactly one controller per presentation id. Starting a
// presentation that is already streaming replaces its session.
type Manager struct {
	ctx     context.Context
	factory ControllerFactory
	saver   *Saver
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Controller
	wg       sync.WaitGroup
}

// NewManager creates a Manager. Sessions run under ctx, not under the
// context of the request that started them. saver may be nil.
func NewManager(ctx context.Context, factory ControllerFactory, saver *Saver, logger *slog.Logger) *Manager {
	return &Manager{
		ctx:      ctx,
		factory:  factory,
		saver:    saver,
		logger:   logger,
		sessions: make(map[string]*Controller),
	}
}

// Start starts (or restarts) generation for presentationID.
func (m *Manager) Start(presentationID string, kind domain.SessionKind) (domain.Snapshot, error) {
	m.mu.Lock()
	c, ok := m.sessions[presentationID]
	if !ok {
		c = m.factory(WithOnComplete(m.onComplete))
		m.sessions[presentationID] = c
	}
	m.mu.Unlock()
	return c.Start(m.ctx, presentationID, kind)
}

func (m *Manager) get(op, presentationID string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[presentationID]
	if !ok {
		return nil, domain.NewDomainError(op, domain.ErrSessionNotFound, presentationID)
	}
	return c, nil
}

// Cancel disconnects the session of presentationID.
func (m *Manager) Cancel(presentationID string) error {
	c, err := m.get("Manager.Cancel", presentationID)
	if err != nil {
		return err
	}
	c.Cancel()
	return nil
}

// Snapshot returns the current snapshot of presentationID.
func (m *Manager) Snapshot(presentationID string) (domain.Snapshot, error) {
	c, err := m.get("Manager.Snapshot", presentationID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Wait blocks until the session of presentationID ends.
func (m *Manager) Wait(ctx context.Context, presentationID string) (domain.SessionResult, error) {
	c, err := m.get("Manager.Wait", presentationID)
	if err != nil {
		return domain.SessionResult{}, err
	}
	return c.Wait(ctx)
}

// List returns a snapshot per known presentation, ordered by id.
func (m *Manager) List() []domain.Snapshot {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	out := make([]domain.Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := m.Snapshot(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// Forget drops a finished presentation. A running session is cancelled.
func (m *Manager) Forget(presentationID string) {
	m.mu.Lock()
	c, ok := m.sessions[presentationID]
	delete(m.sessions, presentationID)
	m.mu.Unlock()
	if ok {
		c.Cancel()
	}
}

func (m *Manager) onComplete(res domain.SessionResult) {
	if m.saver == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), saveTimeout)
		defer cancel()
		if _, err := m.saver.Save(ctx, res); err != nil {
			m.logger.Error("save after generation failed",
				"presentation_id", res.PresentationID,
				"session_id", res.SessionID,
				"error", err,
			)
		}
	}()
}

// Close cancels every session and waits for pending saves.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		all = append(all, c)
	}
	m.mu.Unlock()
	for _, c := range all {
		c.Cancel()
	}
	// A session's callback has run by the time Wait returns, so every save
	// it scheduled is counted before wg.Wait.
	for _, c := range all {
		_, _ = c.Wait(context.Background())
	}
	m.wg.Wait()
}
