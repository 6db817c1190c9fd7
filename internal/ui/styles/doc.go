// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the color palette and named themes for gemchat.

# Color System (colors.go)

The palette uses Lip Gloss AdaptiveColor values:

  - Purple - Prompt and assistant label
  - Cyan - Info lines and language badges
  - Emerald - Success
  - Amber - Warnings
  - Rose - Errors and refusals

# Theme System (theme.go)

A Theme pins each palette color to its light or dark variant and names
the matching glamour and chroma styles. The mono theme disables styling.

	theme := styles.NewTheme("dark")
	fmt.Fprintln(os.Stderr, theme.StatusWarning("history file was corrupt"))

# Spinners (animations.go)

Spinner frames come from the bubbles spinner presets:

	frames := theme.Spinner()
	fmt.Fprint(os.Stderr, "\r"+frames.Frame(tick))
*/
package styles
