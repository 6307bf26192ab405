// Package repair turns the growing text of a generation stream into the best
// available parse of the document it describes.
package repair

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"deckstream/internal/domain"
)

// Status is the outcome of one accumulation step.
type Status int

const (
	// StatusIncomplete means no usable document yet; keep accumulating.
	StatusIncomplete Status = iota
	// StatusParsed means Result.Document holds a document of the locked shape.
	StatusParsed
	// StatusUnknownFormat means the text parsed but matches neither shape.
	StatusUnknownFormat
)

func (s Status) String() string {
	switch s {
	case StatusParsed:
		return "parsed"
	case StatusUnknownFormat:
		return "unknown_format"
	default:
		return "incomplete"
	}
}

// Result is returned by every accumulation step.
type Result struct {
	Status   Status
	Document *domain.PartialDocument
	// Repaired is set when the text needed closing tokens to parse.
	Repaired bool
	// Anomaly is set when the alternate shape appeared after the shape was
	// locked; Document then holds the last document of the locked shape.
	Anomaly bool
}

// Repairer accumulates fragments for one session. It is owned by a single
// goroutine.
type Repairer struct {
	buf    strings.Builder
	shape  domain.DocumentShape
	last   *domain.PartialDocument
	logger *slog.Logger
}

// New creates a Repairer.
func New(logger *slog.Logger) *Repairer {
	return &Repairer{logger: logger}
}

// Accumulate appends fragment to the buffer and re-parses the whole buffer.
// It never panics; any internal failure degrades to StatusIncomplete.
func (r *Repairer) Accumulate(fragment string) (res Result) {
	defer r.recoverTo(&res, "Accumulate")
	r.buf.WriteString(fragment)
	return r.evaluate(r.buf.String())
}

// Final parses the full accumulated buffer as the authoritative result.
// Shape locking still applies.
func (r *Repairer) Final() (res Result) {
	defer r.recoverTo(&res, "Final")
	return r.evaluate(r.buf.String())
}

// Buffer returns the accumulated text.
func (r *Repairer) Buffer() string { return r.buf.String() }

// Shape returns the locked shape, or ShapeNone.
func (r *Repairer) Shape() domain.DocumentShape { return r.shape }

// Last returns the most recent document of the locked shape, if any.
func (r *Repairer) Last() *domain.PartialDocument { return r.last }

// Reset clears the buffer and the shape lock for a new session.
func (r *Repairer) Reset() {
	r.buf.Reset()
	r.shape = domain.ShapeNone
	r.last = nil
}

func (r *Repairer) evaluate(text string) Result {
	v, repaired, ok := Parse(text)
	if !ok {
		return Result{Status: StatusIncomplete}
	}
	doc := domain.DocumentFromValue(v)
	if doc == nil {
		if r.shape != domain.ShapeNone {
			// Once a shape is locked a stray parse is treated as more text
			// to come, so detection never goes backwards.
			return Result{Status: StatusIncomplete, Repaired: repaired}
		}
		return Result{Status: StatusUnknownFormat, Repaired: repaired}
	}

	switch {
	case r.shape == domain.ShapeNone:
		r.shape = doc.Shape
	case doc.Shape != r.shape:
		r.logger.Warn("document shape changed mid-stream, keeping first shape",
			"locked", r.shape.String(),
			"seen", doc.Shape.String(),
		)
		if r.last == nil {
			return Result{Status: StatusIncomplete, Repaired: repaired, Anomaly: true}
		}
		return Result{Status: StatusParsed, Document: r.last, Repaired: repaired, Anomaly: true}
	}
	r.last = doc
	return Result{Status: StatusParsed, Document: doc, Repaired: repaired}
}

func (r *Repairer) recoverTo(res *Result, op string) {
	if p := recover(); p != nil {
		r.logger.Error("repair step panicked", "op", op, "panic", fmt.Sprint(p))
		*res = Result{Status: StatusIncomplete}
	}
}

// Parse decodes text, closing unterminated constructs when a direct parse
// fails. repaired reports whether Close was needed.
func Parse(text string) (v any, repaired bool, ok bool) {
	text = StripCodeFences(text)
	if text == "" {
		return nil, false, false
	}
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, false, true
	}
	closed, ok := Close(text)
	if !ok {
		return nil, false, false
	}
	v = nil
	if err := json.Unmarshal([]byte(closed), &v); err != nil {
		return nil, false, false
	}
	return v, true, true
}

var (
	openFenceRe  = regexp.MustCompile("(?i)^```[a-z]*[ \t]*\r?\n?")
	closeFenceRe = regexp.MustCompile("\\s*```\\s*$")
)

// StripCodeFences removes a markdown code fence the model may wrap its JSON
// in. The closing fence may not have arrived yet.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = openFenceRe.ReplaceAllString(s, "")
	s = closeFenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// FromPayload classifies the document carried by a complete event. The
// payload is either the document itself or a presentation record. A deck
// record carries the generated slides at the top level next to the earlier
// outline under "outlines" (an object, or plain outline text); deck sessions
// take the top-level slides and outline sessions take the outline, each
// falling back to the other. Shape locking does not apply: the producer's
// final payload is authoritative.
func FromPayload(raw json.RawMessage, kind domain.SessionKind) (*domain.PartialDocument, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	outline := func() *domain.PartialDocument {
		switch outlines := obj["outlines"].(type) {
		case string:
			return &domain.PartialDocument{Shape: domain.ShapeOutline, Outline: outlines}
		case map[string]any:
			return domain.DocumentFromValue(outlines)
		}
		return nil
	}

	order := []func() *domain.PartialDocument{outline, func() *domain.PartialDocument { return domain.DocumentFromValue(obj) }}
	if kind == domain.KindDeck {
		order[0], order[1] = order[1], order[0]
	}
	for _, pick := range order {
		if doc := pick(); doc != nil {
			return doc, true
		}
	}
	return nil, false
}
