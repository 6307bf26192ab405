package domain

import (
	"encoding/json"
	"strings"
)

// DocumentShape identifies which of the accepted top-level shapes a parsed
// generation document has.
type DocumentShape int

const (
	ShapeNone DocumentShape = iota
	ShapeSlides
	ShapeOutline
)

func (s DocumentShape) String() string {
	switch s {
	case ShapeSlides:
		return "slides"
	case ShapeOutline:
		return "outline"
	default:
		return "none"
	}
}

// MarshalJSON encodes the shape by name.
func (s DocumentShape) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a shape name; unknown names decode as ShapeNone.
func (s *DocumentShape) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "slides":
		*s = ShapeSlides
	case "outline":
		*s = ShapeOutline
	default:
		*s = ShapeNone
	}
	return nil
}

// SlideDraft is one slide record of a (possibly partial) document.
type SlideDraft struct {
	Index       int            `json:"index"`
	ID          string         `json:"id,omitempty"`
	Content     string         `json:"content"`
	Layout      string         `json:"layout,omitempty"`
	LayoutGroup string         `json:"layout_group,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	// Data is the structured content of a deck slide; nil for outline slides.
	Data map[string]any `json:"data,omitempty"`
}

// PartialDocument is the best-effort parse of an accumulated stream.
type PartialDocument struct {
	Shape   DocumentShape `json:"shape"`
	Slides  []SlideDraft  `json:"slides,omitempty"`
	Outline string        `json:"outline,omitempty"`
}

// AsSlides returns the document as a slide list; a plain outline becomes a
// single slide.
func (d *PartialDocument) AsSlides() []SlideDraft {
	if d == nil {
		return nil
	}
	if d.Shape == ShapeOutline {
		return []SlideDraft{{Content: d.Outline}}
	}
	return d.Slides
}

// RawTextDocument wraps unparseable text into a single-slide document.
func RawTextDocument(text string) *PartialDocument {
	if strings.TrimSpace(text) == "" {
		text = "No outline content received"
	}
	return &PartialDocument{
		Shape:  ShapeSlides,
		Slides: []SlideDraft{{Content: text}},
	}
}

// DocumentFromValue classifies a decoded JSON value into one of the accepted
// shapes. It returns nil when the value matches neither shape.
func DocumentFromValue(v any) *PartialDocument {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if raw, ok := obj["slides"].([]any); ok {
		return &PartialDocument{Shape: ShapeSlides, Slides: SlidesFromValues(raw)}
	}
	if outline, ok := obj["outline"].(string); ok {
		return &PartialDocument{Shape: ShapeOutline, Outline: outline}
	}
	return nil
}

// SlidesFromValues converts decoded slide records into drafts. Records may be
// objects with "content" (or the older "slideContent") or bare strings.
func SlidesFromValues(raw []any) []SlideDraft {
	slides := make([]SlideDraft, 0, len(raw))
	for i, item := range raw {
		slide := SlideDraft{Index: i}
		switch rec := item.(type) {
		case string:
			slide.Content = rec
		case map[string]any:
			content, ok := rec["content"]
			if !ok {
				content = rec["slideContent"]
			}
			slide.Content, slide.Data = contentOf(content)
			slide.ID = stringField(rec, "id")
			slide.Layout = stringField(rec, "layout")
			slide.LayoutGroup = stringField(rec, "layout_group")
			if slide.LayoutGroup == "" {
				slide.LayoutGroup = stringField(rec, "layoutGroup")
			}
			if idx, ok := rec["index"].(float64); ok {
				slide.Index = int(idx)
			}
			if props, ok := rec["properties"].(map[string]any); ok {
				slide.Properties = props
			}
		case nil:
		default:
			slide.Content, _ = contentOf(rec)
		}
		slides = append(slides, slide)
	}
	return slides
}

func contentOf(v any) (string, map[string]any) {
	switch c := v.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	case map[string]any:
		b, _ := json.Marshal(c)
		return string(b), c
	default:
		b, _ := json.Marshal(c)
		return string(b), nil
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
