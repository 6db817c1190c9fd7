// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// =============================================================================
// SPINNER ANIMATIONS
// =============================================================================

// SpinnerConfig holds the frames and frame interval for a spinner.
type SpinnerConfig struct {
	Frames   []string
	Interval time.Duration
}

// DotSpinner is the braille dot spinner used on color themes.
var DotSpinner = fromBubbles(spinner.Dot)

// LineSpinner is the ASCII line spinner used on the mono theme.
var LineSpinner = fromBubbles(spinner.Line)

// MiniDotSpinner is a compact alternative for narrow terminals.
var MiniDotSpinner = fromBubbles(spinner.MiniDot)

func fromBubbles(s spinner.Spinner) SpinnerConfig {
	return SpinnerConfig{Frames: s.Frames, Interval: s.FPS}
}

// Frame returns the frame for tick n, wrapping around.
func (s SpinnerConfig) Frame(n int) string {
	if len(s.Frames) == 0 {
		return ""
	}
	if n < 0 {
		n = -n
	}
	return s.Frames[n%len(s.Frames)]
}

// Spinner returns the spinner that suits the theme.
func (t Theme) Spinner() SpinnerConfig {
	if t.Plain {
		return LineSpinner
	}
	return DotSpinner
}
