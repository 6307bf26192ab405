// Package layout holds the layout registry and the resolver that maps a
// slide's (layoutId, group) pair to one registered layout.
package layout

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kaptinlin/jsonschema"

	"deckstream/internal/domain"
)

// Entry is one registered layout.
type Entry struct {
	Key         string
	Group       string
	LayoutID    string
	Name        string
	Description string

	schemaRaw []byte
	schema    *jsonschema.Schema
	render    domain.Renderer
}

// Option configures an Entry at registration.
type Option func(*Entry) error

// WithName sets the display name.
func WithName(name string) Option {
	return func(e *Entry) error {
		e.Name = name
		return nil
	}
}

// WithDescription sets the description shown to layout pickers.
func WithDescription(d string) Option {
	return func(e *Entry) error {
		e.Description = d
		return nil
	}
}

// WithSchema attaches a JSON Schema that slide data is checked against
// before rendering.
func WithSchema(raw []byte) Option {
	return func(e *Entry) error {
		schema, err := jsonschema.NewCompiler().Compile(raw)
		if err != nil {
			return fmt.Errorf("compile schema: %w", err)
		}
		e.schemaRaw = raw
		e.schema = schema
		return nil
	}
}

// Schema returns the raw JSON Schema, or nil.
func (e *Entry) Schema() []byte { return e.schemaRaw }

// Validate checks data against the entry schema. Entries without a schema
// accept anything.
func (e *Entry) Validate(data map[string]any) error {
	if e.schema == nil {
		return nil
	}
	result := e.schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}

// Render renders data with the entry's renderer. Data that does not satisfy
// the schema still renders; the slide is marked Incomplete since a slide is
// routinely missing fields while it streams.
func (e *Entry) Render(data map[string]any) (slide domain.RenderedSlide, err error) {
	defer func() {
		if p := recover(); p != nil {
			slide, err = domain.RenderedSlide{}, fmt.Errorf("render %s: panic: %v", e.Key, p)
		}
	}()
	if data == nil {
		data = map[string]any{}
	}
	invalid := e.Validate(data) != nil
	slide, err = e.render(data)
	if err != nil {
		return domain.RenderedSlide{}, fmt.Errorf("render %s: %w", e.Key, err)
	}
	slide.LayoutKey = e.Key
	slide.Incomplete = slide.Incomplete || invalid
	return slide, nil
}

// Registry holds layouts keyed "group:layoutId". It is filled once at
// startup and frozen; lookups are safe from any goroutine.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	frozen  atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// SplitKey splits a registry key into its group and layout id.
func SplitKey(key string) (group, layoutID string, ok bool) {
	group, layoutID, found := strings.Cut(key, ":")
	if !found || group == "" || layoutID == "" {
		return "", "", false
	}
	if strings.ContainsAny(key, " \t\r\n") || strings.Contains(layoutID, ":") {
		return "", "", false
	}
	return group, layoutID, true
}

// Register adds a layout. Returns an error for a malformed key, a duplicate
// key, or a registry that is already frozen.
func (r *Registry) Register(key string, render domain.Renderer, opts ...Option) error {
	const op = "Registry.Register"
	if r.frozen.Load() {
		return domain.NewSubSystemError("layout", op, domain.ErrRegistryFrozen, key)
	}
	group, id, ok := SplitKey(key)
	if !ok {
		return domain.NewSubSystemError("layout", op, domain.ErrInvalidInput, fmt.Sprintf("malformed key %q", key))
	}
	if render == nil {
		return domain.NewSubSystemError("layout", op, domain.ErrInvalidInput, fmt.Sprintf("%s: nil renderer", key))
	}

	e := &Entry{Key: key, Group: group, LayoutID: id, Name: id, render: render}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return domain.NewSubSystemError("layout", op, domain.ErrInvalidInput, fmt.Sprintf("%s: %v", key, err))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return domain.NewSubSystemError("layout", op, domain.ErrDuplicate, key)
	}
	r.entries[key] = e
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() { r.frozen.Store(true) }

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool { return r.frozen.Load() }

// Lookup returns the entry for an exact key.
func (r *Registry) Lookup(key string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// Get is Lookup with a not-found error.
func (r *Registry) Get(key string) (*Entry, error) {
	if e, ok := r.Lookup(key); ok {
		return e, nil
	}
	return nil, domain.NewSubSystemError("layout", "Registry.Get", domain.ErrNotFound, key)
}

// Keys returns all keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns all entries ordered by key.
func (r *Registry) Entries() []*Entry {
	keys := r.Keys()
	out := make([]*Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := r.Lookup(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Groups returns the distinct groups, sorted.
func (r *Registry) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, e := range r.Entries() {
		if !seen[e.Group] {
			seen[e.Group] = true
			groups = append(groups, e.Group)
		}
	}
	return groups
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
