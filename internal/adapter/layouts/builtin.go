// Package layouts registers the built-in slide layouts.
package layouts

import (
	"strings"

	"deckstream/internal/domain"
	"deckstream/internal/usecase/layout"
)

type builtin struct {
	key         string
	name        string
	description string
	schema      string
	render      domain.Renderer
}

var builtins = []builtin{
	{
		key:         "standard:title-slide",
		name:        "Title",
		description: "Opening slide with a title and an optional subtitle.",
		schema:      titleSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:    text(d, "title", "heading"),
				Subtitle: text(d, "subtitle", "tagline", "description"),
			}, nil
		},
	},
	{
		key:         "standard:heading-bullet-image-description-layout",
		name:        "Heading, bullets and image",
		description: "Heading with a description, bullet cards and an optional image.",
		schema:      headingBulletsSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:    text(d, "title", "heading"),
				Body:     text(d, "description", "content", "body"),
				Bullets:  items(d, "bullets", "bulletPoints", "cards", "items"),
				ImageURL: imageURL(d),
			}, nil
		},
	},
	{
		key:         "standard:bullet-list-layout",
		name:        "Bullet list",
		description: "Title and a list of bullet points.",
		schema:      bulletListSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:   text(d, "title", "heading"),
				Bullets: items(d, "bullets", "bulletPoints", "items", "points"),
			}, nil
		},
	},
	{
		key:         "standard:title-description-layout",
		name:        "Title and description",
		description: "Title with a block of body text.",
		schema:      titleDescriptionSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title: text(d, "title", "heading"),
				Body:  text(d, "description", "content", "body", "text"),
			}, nil
		},
	},
	{
		key:         "standard:image-with-caption-layout",
		name:        "Image with caption",
		description: "Full image with a caption underneath.",
		schema:      imageCaptionSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:    text(d, "title", "heading"),
				ImageURL: imageURL(d),
				Footer:   text(d, "caption"),
			}, nil
		},
	},
	{
		key:         "standard:two-column-layout",
		name:        "Two columns",
		description: "Two columns of text, for comparisons.",
		schema:      twoColumnSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			left := columnText(d, "left", "leftColumn")
			right := columnText(d, "right", "rightColumn")
			return domain.RenderedSlide{
				Title:   text(d, "title", "heading"),
				Body:    strings.TrimSpace(left + "\n\n" + right),
				Bullets: nonEmpty(left, right),
			}, nil
		},
	},
	{
		key:         "standard:quote-layout",
		name:        "Quote",
		description: "A single quotation with attribution.",
		schema:      quoteSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:  text(d, "title"),
				Body:   text(d, "quote", "content"),
				Footer: text(d, "author", "attribution"),
			}, nil
		},
	},
	{
		key:         "standard:table-of-contents-layout",
		name:        "Table of contents",
		description: "Numbered list of the deck's sections.",
		schema:      tocSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			title := text(d, "title")
			if title == "" {
				title = "Contents"
			}
			return domain.RenderedSlide{
				Title:   title,
				Bullets: items(d, "items", "sections", "bullets"),
			}, nil
		},
	},
	{
		key:         "general:title",
		name:        "Title Slide",
		description: "A clean title slide with main title and subtitle.",
		schema:      generalTitleSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:    text(d, "title"),
				Subtitle: text(d, "subtitle"),
			}, nil
		},
	},
	{
		key:         "general:content",
		name:        "Content Slide",
		description: "A slide with title, content text and optional bullet points.",
		schema:      generalContentSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:   text(d, "title"),
				Body:    text(d, "content"),
				Bullets: items(d, "bulletPoints"),
			}, nil
		},
	},
	{
		key:         "general:image",
		name:        "Image Slide",
		description: "A slide featuring an image with title and caption.",
		schema:      generalImageSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:    text(d, "title"),
				Body:     text(d, "content"),
				ImageURL: imageURL(d),
				Footer:   text(d, "caption"),
			}, nil
		},
	},
	{
		key:         "modern:title",
		name:        "Modern Title Slide",
		description: "A modern title slide with an accent color.",
		schema:      modernTitleSchema,
		render: func(d map[string]any) (domain.RenderedSlide, error) {
			return domain.RenderedSlide{
				Title:    text(d, "title"),
				Subtitle: text(d, "subtitle"),
				Footer:   text(d, "accent"),
			}, nil
		},
	},
}

// Register adds every built-in layout to reg.
func Register(reg *layout.Registry) error {
	for _, b := range builtins {
		err := reg.Register(b.key, b.render,
			layout.WithName(b.name),
			layout.WithDescription(b.description),
			layout.WithSchema([]byte(b.schema)),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a frozen registry holding the built-in layouts.
func NewRegistry() (*layout.Registry, error) {
	reg := layout.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

func columnText(d map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := d[k].(type) {
		case string:
			return strings.TrimSpace(v)
		case map[string]any:
			head := text(v, "title", "heading")
			body := text(v, "content", "description", "text")
			if list := items(v, "bullets", "items"); len(list) > 0 {
				body = strings.TrimSpace(body + "\n- " + strings.Join(list, "\n- "))
			}
			return strings.TrimSpace(head + "\n" + body)
		}
	}
	return ""
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
