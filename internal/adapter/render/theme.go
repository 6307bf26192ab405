package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive palette; lipgloss drops color output when NO_COLOR is set.
var (
	colorSuccess      = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError        = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning      = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo         = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent       = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted        = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder       = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
	colorBorderActive = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#42a5f5"}
)

var (
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleDim     = lipgloss.NewStyle().Faint(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	styleAccent  = lipgloss.NewStyle().Foreground(colorAccent)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)

	cardNormal = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	cardActive = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorderActive).
			Padding(0, 1)
	cardFallback = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorWarning).
			Padding(0, 1)
)

// Symbols holds the glyphs used in rendered output.
type Symbols struct {
	Success  string
	Error    string
	Warning  string
	Active   string
	Bullet   string
	Ellipsis string
	Image    string
}

var unicodeSymbols = Symbols{
	Success:  "✓",
	Error:    "✗",
	Warning:  "⚠",
	Active:   "▶",
	Bullet:   "•",
	Ellipsis: "…",
	Image:    "▣",
}

var asciiSymbols = Symbols{
	Success:  "[OK]",
	Error:    "[ERR]",
	Warning:  "[!]",
	Active:   ">",
	Bullet:   "*",
	Ellipsis: "...",
	Image:    "[img]",
}

// DetectSymbols picks unicode glyphs unless DECKSTREAM_ASCII_SYMBOLS is set
// or the locale says the terminal is not UTF-8.
func DetectSymbols() Symbols {
	if v := os.Getenv("DECKSTREAM_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return asciiSymbols
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return unicodeSymbols
		}
		if val == "c" || val == "posix" {
			return asciiSymbols
		}
	}
	return unicodeSymbols
}

// ASCIISymbols returns the plain-text glyph set.
func ASCIISymbols() Symbols { return asciiSymbols }
