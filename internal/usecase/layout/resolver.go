package layout

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"deckstream/internal/domain"
)

// DefaultSynonyms maps retired or alternate layout ids to canonical ones.
var DefaultSynonyms = map[string]string{
	"cards-slide":      "heading-bullet-image-description-layout",
	"intro-slide":      "title-slide",
	"first-slide":      "title-slide",
	"bullet-slide":     "bullet-list-layout",
	"bullets":          "bullet-list-layout",
	"text-slide":       "title-description-layout",
	"image-slide":      "image-with-caption-layout",
	"comparison-slide": "two-column-layout",
	"toc-slide":        "table-of-contents-layout",
}

// DefaultGenericFallbacks are layouts that render arbitrary title,
// description and bullet content, tried in order when nothing else matched.
var DefaultGenericFallbacks = []string{
	"heading-bullet-image-description-layout",
	"title-description-layout",
	"bullet-list-layout",
	"content",
}

// Stage names the resolution step that produced a hit.
type Stage string

const (
	StageExact   Stage = "exact"
	StageSynonym Stage = "synonym"
	StageGeneric Stage = "generic"
	StageMiss    Stage = "miss"
)

// maxReportedMisses bounds the miss dedupe set; it is cleared when full.
const maxReportedMisses = 4096

type missKey struct {
	sessionID, layoutID, group string
}

// Trace records how a resolution went.
type Trace struct {
	Stage Stage    `json:"stage"`
	Key   string   `json:"key,omitempty"`
	Tried []string `json:"tried"`
}

// Resolver maps (layoutId, group) pairs onto registry entries. Resolve is a
// pure function of the registry contents and the resolver's tables.
type Resolver struct {
	registry *Registry
	synonyms map[string]string
	generic  []string
	logger   *slog.Logger
	bus      domain.EventBus

	missMu   sync.Mutex
	reported map[missKey]struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSynonyms adds synonym mappings; they override defaults with the same id.
func WithSynonyms(m map[string]string) ResolverOption {
	return func(r *Resolver) {
		for from, to := range m {
			r.synonyms[strings.TrimSpace(from)] = strings.TrimSpace(to)
		}
	}
}

// WithGenericFallbacks appends layout ids to the generic fallback chain.
func WithGenericFallbacks(ids []string) ResolverOption {
	return func(r *Resolver) {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id != "" && !contains(r.generic, id) {
				r.generic = append(r.generic, id)
			}
		}
	}
}

// WithEventBus publishes EventLayoutMiss on misses reported by ResolveContext.
func WithEventBus(bus domain.EventBus) ResolverOption {
	return func(r *Resolver) { r.bus = bus }
}

// NewResolver creates a Resolver over reg.
func NewResolver(reg *Registry, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry: reg,
		synonyms: make(map[string]string, len(DefaultSynonyms)),
		generic:  append([]string(nil), DefaultGenericFallbacks...),
		logger:   logger,
		reported: make(map[missKey]struct{}),
	}
	for from, to := range DefaultSynonyms {
		r.synonyms[from] = to
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the underlying registry.
func (r *Resolver) Registry() *Registry { return r.registry }

// Resolve returns the entry for layoutID in group, or nil when nothing in
// the registry can render it. The caller renders an inline fallback for nil.
func (r *Resolver) Resolve(layoutID, group string) *Entry {
	e, _ := r.ResolveTrace(layoutID, group)
	return e
}

// ResolveContext is Resolve plus miss reporting: a miss is logged and
// published so operators can find missing layouts. Snapshots are rendered
// many times per session, so each (session, layout id, group) miss is
// reported once.
func (r *Resolver) ResolveContext(ctx context.Context, sessionID, layoutID, group string) *Entry {
	e, trace := r.ResolveTrace(layoutID, group)
	if e != nil {
		return e
	}
	if !r.firstMiss(missKey{sessionID: sessionID, layoutID: layoutID, group: group}) {
		return nil
	}
	r.logger.Warn("layout not resolved, rendering inline fallback",
		"session_id", sessionID,
		"layout_id", layoutID,
		"group", group,
		"tried", len(trace.Tried),
		"error", domain.ErrLayoutNotFound,
	)
	if r.bus != nil {
		r.bus.Publish(ctx, domain.NewEvent(domain.EventLayoutMiss, sessionID, domain.LayoutMiss{
			LayoutID: layoutID,
			Group:    group,
			Tried:    trace.Tried,
		}))
	}
	return nil
}

func (r *Resolver) firstMiss(k missKey) bool {
	r.missMu.Lock()
	defer r.missMu.Unlock()
	if _, seen := r.reported[k]; seen {
		return false
	}
	if len(r.reported) >= maxReportedMisses {
		clear(r.reported)
	}
	r.reported[k] = struct{}{}
	return true
}

// ResolveTrace resolves like Resolve and also reports every key it tried.
func (r *Resolver) ResolveTrace(layoutID, group string) (*Entry, Trace) {
	var tr Trace
	try := func(stage Stage, key string) *Entry {
		if key == "" || contains(tr.Tried, key) {
			return nil
		}
		tr.Tried = append(tr.Tried, key)
		if e, ok := r.registry.Lookup(key); ok {
			tr.Stage, tr.Key = stage, key
			return e
		}
		return nil
	}

	id := strings.TrimSpace(layoutID)
	explicit := strings.TrimSpace(group)
	embedded, base := splitLayoutID(id)

	// Exact candidates.
	candidates := []string{
		join(embedded, base),
	}
	if explicit != embedded {
		candidates = append(candidates, join(explicit, base))
	}
	candidates = append(candidates, layoutID)
	if !strings.Contains(id, ":") {
		candidates = append(candidates, join(explicit, id))
	}
	for _, key := range candidates {
		if e := try(StageExact, key); e != nil {
			return e, tr
		}
	}

	groups := groupUnion(embedded, explicit)

	if canonical, ok := r.synonyms[base]; ok && canonical != "" {
		for _, g := range groups {
			if e := try(StageSynonym, join(g, canonical)); e != nil {
				return e, tr
			}
		}
	}

	for _, fallback := range r.generic {
		for _, g := range groups {
			if e := try(StageGeneric, join(g, fallback)); e != nil {
				return e, tr
			}
		}
	}

	tr.Stage = StageMiss
	return nil, tr
}

// splitLayoutID splits "group:id" into its parts. When the split yields no
// usable id the whole input is the base id.
func splitLayoutID(id string) (embedded, base string) {
	g, rest, found := strings.Cut(id, ":")
	if !found {
		return "", id
	}
	g, rest = strings.TrimSpace(g), strings.TrimSpace(rest)
	if rest == "" {
		return "", id
	}
	return g, rest
}

func groupUnion(embedded, explicit string) []string {
	var out []string
	for _, g := range []string{embedded, explicit, domain.DefaultLayoutGroup} {
		if g != "" && !contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

func join(group, id string) string {
	if group == "" || id == "" {
		return ""
	}
	return group + ":" + id
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
