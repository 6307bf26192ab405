package domain

// DefaultLayoutGroup is always part of the group union tried by fallback resolution.
const DefaultLayoutGroup = "standard"

// RenderedSlide is the output of a layout renderer.
type RenderedSlide struct {
	LayoutKey string   `json:"layout_key"`
	Title     string   `json:"title,omitempty"`
	Subtitle  string   `json:"subtitle,omitempty"`
	Body      string   `json:"body,omitempty"`
	Bullets   []string `json:"bullets,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	Footer    string   `json:"footer,omitempty"`
	// Incomplete is set when the slide data did not yet satisfy the layout
	// schema, which is expected while a slide is still streaming.
	Incomplete bool `json:"incomplete,omitempty"`
	// Fallback is set when no layout resolved and the slide was rendered inline.
	Fallback bool `json:"fallback,omitempty"`
}

// Renderer turns slide data into a rendered slide.
type Renderer func(data map[string]any) (RenderedSlide, error)
