// Package slidediff tracks which slide of a growing document is being
// written, for active-slide highlighting and progress.
package slidediff

import "deckstream/internal/domain"

// None is the sentinel index before any slide changed.
const None = -1

// Diff returns the last index whose content differs between prev and next.
// Positions past the end of either list count as different, so appended
// slides are detected. ok is false when nothing changed.
func Diff(prev, next []domain.SlideDraft) (int, bool) {
	n := max(len(prev), len(next))
	changed := None
	for i := 0; i < n; i++ {
		if i >= len(prev) || i >= len(next) || prev[i].Content != next[i].Content {
			changed = i
		}
	}
	return changed, changed != None
}

// Tracker holds the clamped active index and the highest index seen for one
// session. It is owned by a single goroutine.
type Tracker struct {
	prev    []domain.SlideDraft
	active  int
	highest int
}

// New creates a Tracker in its initial state.
func New() *Tracker {
	return &Tracker{active: None, highest: None}
}

// Observe records the slides of a fresh parse and returns the updated
// indexes. The active index never decreases; highest is never below active.
func (t *Tracker) Observe(next []domain.SlideDraft) (active, highest int) {
	if changed, ok := Diff(t.prev, next); ok && changed > t.active {
		t.active = changed
	}
	if t.active > t.highest {
		t.highest = t.active
	}
	t.prev = next
	return t.active, t.highest
}

// Active returns the current active index.
func (t *Tracker) Active() int { return t.active }

// Highest returns the highest active index seen.
func (t *Tracker) Highest() int { return t.highest }

// Reset returns both counters to None and forgets the previous parse.
func (t *Tracker) Reset() {
	t.prev = nil
	t.active = None
	t.highest = None
}
