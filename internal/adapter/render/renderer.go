// Package render draws session snapshots for a terminal.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"deckstream/internal/domain"
	"deckstream/internal/usecase/layout"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// Renderer turns snapshots into styled text. Slides are resolved through
// the layout resolver; a slide no layout can render is drawn inline.
type Renderer struct {
	resolver *layout.Resolver
	logger   *slog.Logger
	width    int
	markdown bool
	group    string
	sym      Symbols

	mu sync.Mutex
	md *glamour.TermRenderer
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithWidth sets the output width in cells.
func WithWidth(w int) Option {
	return func(r *Renderer) {
		if w > 20 {
			r.width = w
		}
	}
}

// WithMarkdown toggles glamour rendering of outline text.
func WithMarkdown(on bool) Option {
	return func(r *Renderer) { r.markdown = on }
}

// WithSymbols overrides the detected glyph set.
func WithSymbols(s Symbols) Option {
	return func(r *Renderer) { r.sym = s }
}

// WithDefaultGroup sets the group used for slides that name none.
func WithDefaultGroup(g string) Option {
	return func(r *Renderer) {
		if g != "" {
			r.group = g
		}
	}
}

// New creates a Renderer. resolver may be nil, in which case every deck
// slide is drawn inline.
func New(resolver *layout.Resolver, logger *slog.Logger, opts ...Option) *Renderer {
	r := &Renderer{
		resolver: resolver,
		logger:   logger,
		width:    DefaultWidth,
		markdown: true,
		group:    domain.DefaultLayoutGroup,
		sym:      DetectSymbols(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetWidth changes the output width, typically after a terminal resize.
// Widths of 20 cells or less are ignored.
func (r *Renderer) SetWidth(w int) {
	if w <= 20 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if w != r.width {
		r.width = w
		r.md = nil
	}
}

// Width reports the current output width.
func (r *Renderer) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width
}

// Slide renders one slide draft. Outline slides carry only text and are
// returned as a body; deck slides go through the resolver.
func (r *Renderer) Slide(ctx context.Context, sessionID string, d domain.SlideDraft) domain.RenderedSlide {
	if d.Data == nil && d.Layout == "" {
		return domain.RenderedSlide{Body: strings.TrimSpace(d.Content)}
	}
	group := d.LayoutGroup
	if group == "" {
		group = r.group
	}
	if r.resolver != nil {
		if e := r.resolver.ResolveContext(ctx, sessionID, d.Layout, group); e != nil {
			slide, err := e.Render(d.Data)
			if err == nil {
				return slide
			}
			r.logger.Warn("layout render failed, rendering inline fallback",
				"session_id", sessionID,
				"layout", e.Key,
				"error", err,
			)
		}
	}
	return inlineSlide(d)
}

// inlineSlide is the last-resort view: a title plus the raw content.
func inlineSlide(d domain.SlideDraft) domain.RenderedSlide {
	title, _ := d.Data["title"].(string)
	if title == "" {
		title, _ = d.Data["heading"].(string)
	}
	body := d.Content
	if d.Data != nil {
		var sb strings.Builder
		keys := make([]string, 0, len(d.Data))
		for k := range d.Data {
			if k != "title" && k != "heading" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s: %v\n", k, d.Data[k])
		}
		body = strings.TrimRight(sb.String(), "\n")
	}
	return domain.RenderedSlide{
		LayoutKey: d.Layout,
		Title:     strings.TrimSpace(title),
		Body:      strings.TrimSpace(body),
		Fallback:  true,
	}
}

// Snapshot renders a full frame: header, error (if any) and slides.
func (r *Renderer) Snapshot(ctx context.Context, snap domain.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(r.header(snap))
	sb.WriteString("\n")

	if snap.Error != "" {
		fe := HumanizeMessage(snap.Error)
		sb.WriteString(styleError.Render(r.sym.Error+" "+fe.Title))
		sb.WriteString("\n")
		sb.WriteString(styleMuted.Render(strings.TrimPrefix(fe.Format(r.sym), fe.Title+"\n")))
		sb.WriteString("\n")
	}

	doc := snap.Document
	if doc == nil {
		sb.WriteString(styleDim.Render("waiting for content" + r.sym.Ellipsis))
		sb.WriteString("\n")
		return sb.String()
	}
	if doc.Shape == domain.ShapeOutline {
		sb.WriteString(r.renderMarkdown(doc.Outline))
		return sb.String()
	}

	streaming := snap.State == domain.StateStreaming
	for i, d := range doc.Slides {
		slide := r.Slide(ctx, snap.SessionID, d)
		active := streaming && i == snap.ActiveSlideIndex
		sb.WriteString(r.card(i, slide, active))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Result renders a finished session.
func (r *Renderer) Result(ctx context.Context, res domain.SessionResult) string {
	out := r.Snapshot(ctx, res.Snapshot)
	if res.Degenerate {
		out += styleWarning.Render(r.sym.Warning+" no recognizable document; showing raw text") + "\n"
	}
	return out
}

func (r *Renderer) header(snap domain.Snapshot) string {
	var icon string
	var style lipgloss.Style
	switch snap.State {
	case domain.StateComplete:
		icon, style = r.sym.Success, styleSuccess
	case domain.StateErrored:
		icon, style = r.sym.Error, styleError
	case domain.StateClosed:
		icon, style = r.sym.Warning, styleWarning
	default:
		icon, style = r.sym.Active, styleInfo
	}

	parts := []string{style.Render(icon + " " + string(snap.State))}
	if snap.Kind != "" {
		parts = append(parts, styleBold.Render(string(snap.Kind)))
	}
	if snap.PresentationID != "" {
		parts = append(parts, styleAccent.Render(snap.PresentationID))
	}
	if d := snap.Document; d != nil && d.Shape == domain.ShapeSlides && len(d.Slides) > 0 {
		parts = append(parts, styleMuted.Render(fmt.Sprintf("%d slides", len(d.Slides))))
	}
	if snap.Status != "" {
		parts = append(parts, styleDim.Render(snap.Status))
	}
	return strings.Join(parts, styleDim.Render(" "+r.sym.Bullet+" "))
}

func (r *Renderer) card(i int, s domain.RenderedSlide, active bool) string {
	var lines []string

	label := fmt.Sprintf("%d", i+1)
	if s.LayoutKey != "" {
		label += "  " + s.LayoutKey
	}
	if active {
		label = styleInfo.Render(r.sym.Active + " " + label)
	} else {
		label = styleMuted.Render(label)
	}
	lines = append(lines, label)

	if s.Fallback {
		lines = append(lines, styleWarning.Render(r.sym.Warning+" layout unavailable"))
	}
	if s.Title != "" {
		lines = append(lines, styleBold.Render(s.Title))
	}
	if s.Subtitle != "" {
		lines = append(lines, styleAccent.Render(s.Subtitle))
	}
	if s.Body != "" {
		if s.LayoutKey == "" && !s.Fallback {
			lines = append(lines, strings.TrimRight(r.renderMarkdown(s.Body), "\n"))
		} else {
			lines = append(lines, s.Body)
		}
	}
	for _, b := range s.Bullets {
		lines = append(lines, r.sym.Bullet+" "+b)
	}
	if s.ImageURL != "" {
		lines = append(lines, styleMuted.Render(r.sym.Image+" "+s.ImageURL))
	}
	if s.Footer != "" {
		lines = append(lines, styleDim.Render(s.Footer))
	}
	if s.Incomplete {
		lines = append(lines, styleDim.Render(r.sym.Ellipsis))
	}

	style := cardNormal
	switch {
	case s.Fallback:
		style = cardFallback
	case active:
		style = cardActive
	}
	return style.Width(r.Width() - 2).Render(strings.Join(lines, "\n"))
}

func (r *Renderer) renderMarkdown(content string) string {
	if !r.markdown || strings.TrimSpace(content) == "" {
		return content + "\n"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.md == nil {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.width-4),
		)
		if err != nil {
			r.logger.Debug("markdown renderer unavailable", "error", err)
			return content + "\n"
		}
		r.md = md
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}
