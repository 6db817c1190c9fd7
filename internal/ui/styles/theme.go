// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemeMono  = "mono"
)

// Theme holds the resolved colors and styles for one named theme.
// Unlike the adaptive palette, a theme is chosen explicitly by the user,
// so each color is pinned to its light or dark variant.
type Theme struct {
	Name string

	// Plain disables all styling (mono theme).
	Plain bool

	// GlamourStyle names the glamour standard style for prose.
	GlamourStyle string

	// ChromaStyle names the chroma style for code highlighting.
	ChromaStyle string

	// ==========================================================================
	// TRANSCRIPT STYLES
	// ==========================================================================

	Prompt         lipgloss.Style
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Separator      lipgloss.Style
	Muted          lipgloss.Style

	// ==========================================================================
	// STATUS STYLES
	// ==========================================================================

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	// ==========================================================================
	// CODE BLOCK STYLES
	// ==========================================================================

	CodeBlock     lipgloss.Style
	CodeLangBadge lipgloss.Style
	CodeLineNum   lipgloss.Style
	CodeWarning   lipgloss.Style
}

// NewTheme returns the theme with the given name. Unknown names fall back
// to the dark theme.
func NewTheme(name string) Theme {
	switch strings.ToLower(name) {
	case ThemeMono:
		return monoTheme()
	case ThemeLight:
		return colorTheme(ThemeLight, false)
	default:
		return colorTheme(ThemeDark, true)
	}
}

// ThemeNames lists the available themes.
func ThemeNames() []string {
	return []string{ThemeDark, ThemeLight, ThemeMono}
}

// pin resolves an adaptive color to one variant.
func pin(c lipgloss.AdaptiveColor, dark bool) lipgloss.Color {
	if dark {
		return lipgloss.Color(c.Dark)
	}
	return lipgloss.Color(c.Light)
}

func colorTheme(name string, dark bool) Theme {
	t := Theme{
		Name:         name,
		GlamourStyle: name,
		ChromaStyle:  "monokai",
	}
	if !dark {
		t.ChromaStyle = "github"
	}

	t.Prompt = lipgloss.NewStyle().Foreground(pin(Purple, dark)).Bold(true)
	t.UserLabel = lipgloss.NewStyle().Foreground(pin(Cyan, dark)).Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().Foreground(pin(Purple, dark)).Bold(true)
	t.Separator = lipgloss.NewStyle().Foreground(pin(OverlayDim, dark))
	t.Muted = lipgloss.NewStyle().Foreground(pin(TextMuted, dark))

	t.Success = lipgloss.NewStyle().Foreground(pin(Emerald, dark)).Bold(true)
	t.Warning = lipgloss.NewStyle().Foreground(pin(Amber, dark))
	t.Error = lipgloss.NewStyle().Foreground(pin(Rose, dark)).Bold(true)
	t.Info = lipgloss.NewStyle().Foreground(pin(Cyan, dark))

	t.CodeBlock = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(pin(OverlayDim, dark)).
		Padding(0, 1)
	t.CodeLangBadge = lipgloss.NewStyle().
		Foreground(pin(TextInverse, dark)).
		Background(pin(Cyan, dark)).
		Padding(0, 1).
		Bold(true)
	t.CodeLineNum = lipgloss.NewStyle().
		Foreground(pin(TextMuted, dark)).
		Width(4).
		Align(lipgloss.Right).
		MarginRight(1)
	t.CodeWarning = lipgloss.NewStyle().Foreground(pin(Amber, dark)).Italic(true)
	return t
}

func monoTheme() Theme {
	plain := lipgloss.NewStyle()
	return Theme{
		Name:           ThemeMono,
		Plain:          true,
		GlamourStyle:   "notty",
		ChromaStyle:    "bw",
		Prompt:         plain.Foreground(MonoBright),
		UserLabel:      plain.Bold(true),
		AssistantLabel: plain.Bold(true),
		Separator:      plain.Foreground(MonoDim),
		Muted:          plain.Foreground(MonoDim),
		Success:        plain,
		Warning:        plain,
		Error:          plain,
		Info:           plain,
		CodeBlock:      plain,
		CodeLangBadge:  plain,
		CodeLineNum:    plain.Width(4).Align(lipgloss.Right).MarginRight(1),
		CodeWarning:    plain,
	}
}

// =============================================================================
// STATUS LINES
// =============================================================================

// Status prefixes, ASCII so they survive any terminal.
const (
	PrefixSuccess = "[+]"
	PrefixWarning = "[!]"
	PrefixError   = "[ERROR]"
	PrefixInfo    = "[i]"
)

// StatusSuccess renders a one-line success message.
func (t Theme) StatusSuccess(msg string) string {
	return t.Success.Render(PrefixSuccess) + " " + msg
}

// StatusWarning renders a one-line warning.
func (t Theme) StatusWarning(msg string) string {
	return t.Warning.Render(PrefixWarning + " " + msg)
}

// StatusError renders a one-line error.
func (t Theme) StatusError(msg string) string {
	return t.Error.Render(PrefixError) + " " + msg
}

// StatusInfo renders a one-line informational message.
func (t Theme) StatusInfo(msg string) string {
	return t.Info.Render(PrefixInfo) + " " + msg
}

// Rule renders a horizontal separator of the given width.
func (t Theme) Rule(width int) string {
	if width <= 0 {
		width = 40
	}
	return t.Separator.Render(strings.Repeat("-", width))
}
