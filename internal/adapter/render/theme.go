package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive colors work on both light and dark terminals. NO_COLOR is honored
// by lipgloss's color profile detection.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	userLabel = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	botLabel  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	toolLabel = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)

	textSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	textError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	textWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	textInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	textMuted   = lipgloss.NewStyle().Foreground(colorMuted)

	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

// symbolSet holds the glyphs used in rendered output.
type symbolSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Pending string
	ArrowR  string
}

var unicodeSymbols = symbolSet{
	Success: "✓",
	Error:   "✗",
	Warning: "⚠",
	Info:    "●",
	Pending: "⏳",
	ArrowR:  "→",
}

var asciiSymbols = symbolSet{
	Success: "[OK]",
	Error:   "[ERR]",
	Warning: "[!]",
	Info:    "[i]",
	Pending: "[...]",
	ArrowR:  "->",
}

// detectSymbols picks ASCII glyphs when LIMBO_ASCII_SYMBOLS is set or the
// locale is explicitly non-UTF-8.
func detectSymbols() symbolSet {
	if v := os.Getenv("LIMBO_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
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
