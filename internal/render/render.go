// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strconv"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

const (
	// DefaultWidth is used when the terminal width is unknown.
	DefaultWidth = 80

	minWidth = 20
)

// =============================================================================
// RENDERER
// =============================================================================

// Renderer turns response text into terminal output.
type Renderer struct {
	Theme      styles.Theme
	Width      int
	FormatCode bool
	Formatters *FormatterSet

	// Plain skips all styling: prose is printed as-is and code keeps its
	// fences. Used for non-TTY output and the mono theme.
	Plain bool

	// LineNumbers adds a line-number gutter to highlighted code.
	LineNumbers bool

	mu    sync.Mutex
	prose *glamour.TermRenderer
}

// New creates a renderer for the named theme.
func New(theme string, width int, formatCode, plain bool) *Renderer {
	t := styles.NewTheme(theme)
	if width <= 0 {
		width = DefaultWidth
	}
	return &Renderer{
		Theme:       t,
		Width:       width,
		FormatCode:  formatCode,
		Formatters:  DefaultFormatters(),
		Plain:       plain || t.Plain,
		LineNumbers: true,
	}
}

// Render renders a whole response.
func (r *Renderer) Render(text string) string {
	segments := Split(text)
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, r.RenderSegment(seg))
	}
	return strings.Join(parts, "\n")
}

// RenderSegment renders one segment.
func (r *Renderer) RenderSegment(seg Segment) string {
	if seg.Kind == Code {
		return r.renderCode(seg)
	}
	return r.renderProse(seg.Text)
}

// =============================================================================
// PROSE
// =============================================================================

func (r *Renderer) renderProse(text string) string {
	if r.Plain {
		return text
	}

	tr, err := r.glamour()
	if err != nil {
		logging.L().WithError(err).Warn("markdown renderer unavailable")
		return text
	}

	r.mu.Lock()
	out, err := tr.Render(text)
	r.mu.Unlock()
	if err != nil {
		logging.L().WithError(err).Warn("markdown render failed")
		return text
	}
	return strings.Trim(out, "\n")
}

func (r *Renderer) glamour() (*glamour.TermRenderer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prose != nil {
		return r.prose, nil
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.Theme.GlamourStyle),
		glamour.WithWordWrap(r.wrapWidth()),
	)
	if err != nil {
		return nil, err
	}
	r.prose = tr
	return tr, nil
}

func (r *Renderer) wrapWidth() int {
	w := r.Width - 4
	if w < minWidth {
		w = minWidth
	}
	return w
}

// =============================================================================
// CODE
// =============================================================================

// formatted applies the code-format pass, returning the raw code on failure.
func (r *Renderer) formatted(seg Segment) string {
	if !r.FormatCode || seg.Unterminated {
		return seg.Text
	}
	out, err := r.Formatters.Format(seg.Lang, seg.Text)
	if err != nil {
		logging.L().WithFields(logrus.Fields{"lang": seg.Lang}).WithError(err).Warn("code format pass failed, showing raw code")
		return seg.Text
	}
	return out
}

func (r *Renderer) renderCode(seg Segment) string {
	code := r.formatted(seg)

	if r.Plain {
		var sb strings.Builder
		sb.WriteString(fence + seg.Lang + "\n")
		if code != "" {
			sb.WriteString(code + "\n")
		}
		if !seg.Unterminated {
			sb.WriteString(fence)
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	lines := strings.Split(highlightCode(code, seg.Lang, r.Theme.ChromaStyle), "\n")
	if r.LineNumbers {
		for i, line := range lines {
			lines[i] = r.Theme.CodeLineNum.Render(strconv.Itoa(i+1)) + line
		}
	}

	var header string
	if seg.Lang != "" {
		header = r.Theme.CodeLangBadge.Render(seg.Lang) + "\n"
	}
	body := header + strings.Join(lines, "\n")
	if seg.Unterminated {
		body += "\n" + r.Theme.CodeWarning.Render("(unterminated code block)")
	}

	return r.Theme.CodeBlock.MaxWidth(r.Width).Render(body)
}

// highlightCode applies syntax highlighting using chroma. On any failure
// the code is returned unchanged.
func highlightCode(code, language, styleName string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

// DetectLanguage guesses the language of code, or returns "".
func DetectLanguage(code string) string {
	if lexer := lexers.Analyse(code); lexer != nil {
		return lexer.Config().Name
	}
	return ""
}
