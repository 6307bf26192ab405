package layouts

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckstream/internal/usecase/layout"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.True(t, reg.Frozen())
	assert.Equal(t, len(builtins), reg.Len())
	assert.Equal(t, []string{"general", "modern", "standard"}, reg.Groups())

	// Every generic fallback and synonym target exists in the standard group.
	for _, id := range layout.DefaultGenericFallbacks[:3] {
		_, ok := reg.Lookup("standard:" + id)
		assert.True(t, ok, id)
	}
	for _, id := range layout.DefaultSynonyms {
		_, ok := reg.Lookup("standard:" + id)
		assert.True(t, ok, id)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := layout.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Error(t, Register(reg))
}

func TestRenderHeadingBullets(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	r := layout.NewResolver(reg, slog.Default())

	e := r.Resolve("cards-slide", "")
	require.NotNil(t, e)
	slide, err := e.Render(map[string]any{
		"title":       "Why Go",
		"description": "Small and fast",
		"bullets": []any{
			"Simple",
			map[string]any{"title": "Fast", "description": "compiles quickly"},
		},
		"image": map[string]any{"__image_url__": "https://example.com/a.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Why Go", slide.Title)
	assert.Equal(t, "Small and fast", slide.Body)
	assert.Equal(t, []string{"Simple", "Fast: compiles quickly"}, slide.Bullets)
	assert.Equal(t, "https://example.com/a.png", slide.ImageURL)
	assert.False(t, slide.Incomplete)
}

func TestRenderPartialSlideIsIncomplete(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	e, ok := reg.Lookup("standard:bullet-list-layout")
	require.True(t, ok)

	slide, err := e.Render(map[string]any{"title": "Agenda"})
	require.NoError(t, err)
	assert.Equal(t, "Agenda", slide.Title)
	assert.True(t, slide.Incomplete)
}

func TestRenderTwoColumns(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	e, _ := reg.Lookup("standard:two-column-layout")

	slide, err := e.Render(map[string]any{
		"title": "Before / After",
		"left":  "old way",
		"right": map[string]any{"title": "New", "bullets": []any{"a", "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"old way", "New\n- a\n- b"}, slide.Bullets)
}

func TestRenderGeneralTemplates(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	e, _ := reg.Lookup("general:content")
	slide, err := e.Render(map[string]any{"title": "T", "content": "C", "bulletPoints": []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "C", slide.Body)
	assert.Equal(t, []string{"x"}, slide.Bullets)

	e, _ = reg.Lookup("modern:title")
	slide, err = e.Render(map[string]any{"title": "T", "accent": "#ff0"})
	require.NoError(t, err)
	assert.Equal(t, "#ff0", slide.Footer)
}
