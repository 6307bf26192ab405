package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deckstream/internal/domain"
)

// Saver persists the final document of a finished session. It skips the
// write when the document is unchanged since the last save or matches what
// the store already holds.
type Saver struct {
	store  domain.PresentationStore
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	saved map[string][sha256.Size]byte
}

// NewSaver creates a Saver. bus may be nil.
func NewSaver(store domain.PresentationStore, bus domain.EventBus, logger *slog.Logger) *Saver {
	return &Saver{
		store:  store,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		saved:  make(map[string][sha256.Size]byte),
	}
}

// Save writes res to the store. It returns false when nothing was written.
// Only complete and closed sessions are saved; anything else is ignored so
// a document is never persisted mid-stream.
func (s *Saver) Save(ctx context.Context, res domain.SessionResult) (bool, error) {
	const op = "Saver.Save"
	if res.State != domain.StateComplete && res.State != domain.StateClosed {
		return false, nil
	}
	if res.Document == nil && len(res.Presentation) == 0 {
		return false, nil
	}

	data, err := documentData(res)
	if err != nil {
		return false, domain.WrapOp(op, err)
	}
	sum := sha256.Sum256(data)

	s.mu.Lock()
	last, seen := s.saved[res.PresentationID]
	s.mu.Unlock()
	if seen && last == sum {
		s.logger.Debug("document unchanged, skipping save", "presentation_id", res.PresentationID)
		return false, nil
	}

	p, err := s.store.Fetch(ctx, res.PresentationID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		p = &domain.Presentation{ID: res.PresentationID}
	case err != nil:
		return false, domain.WrapOp(op, err)
	}
	if sameJSON(p.Data, data) {
		s.remember(res.PresentationID, sum)
		return false, nil
	}

	p.Data = data
	p.UpdatedAt = s.now()
	if err := s.store.Update(ctx, p); err != nil {
		return false, domain.WrapOp(op, err)
	}
	s.remember(res.PresentationID, sum)

	s.logger.Info("presentation saved",
		"presentation_id", res.PresentationID,
		"session_id", res.SessionID,
		"bytes", len(data),
	)
	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventSessionSaved, res.SessionID, map[string]string{
			"presentation_id": res.PresentationID,
		}))
	}
	return true, nil
}

func (s *Saver) remember(id string, sum [sha256.Size]byte) {
	s.mu.Lock()
	s.saved[id] = sum
	s.mu.Unlock()
}

type outlineSlide struct {
	Content string `json:"content"`
}

// documentData encodes the stored form: an outline session stores
// {"outlines":{"slides":[{"content":...}]}}, a deck session stores the
// producer's payload when it sent one and the parsed slides otherwise.
func documentData(res domain.SessionResult) (json.RawMessage, error) {
	if res.Kind == domain.KindDeck {
		if len(res.Presentation) > 0 {
			return compact(res.Presentation)
		}
		return json.Marshal(map[string]any{"slides": res.Document.AsSlides()})
	}
	slides := res.Document.AsSlides()
	out := make([]outlineSlide, len(slides))
	for i, sl := range slides {
		out[i] = outlineSlide{Content: sl.Content}
	}
	return json.Marshal(map[string]any{"outlines": map[string]any{"slides": out}})
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compact presentation payload: %w", err)
	}
	return buf.Bytes(), nil
}

func sameJSON(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	ca, err := compact(a)
	if err != nil {
		return false
	}
	cb, err := compact(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
