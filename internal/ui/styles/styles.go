// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling for the inkwell TUI.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark detection.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// COLORS
// =============================================================================

// Purple - Primary accent, assistant output
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - Brand color, focus ring, user highlights
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - Success, diff additions
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - Errors, diff removals
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings, in-flight indicators
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Overlay - Borders and separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextMuted - Hints, ghost text, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// STYLES
// =============================================================================

var (
	// Pane is an unfocused pane border.
	Pane = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	// PaneFocused marks the pane receiving keystrokes.
	PaneFocused = Pane.BorderForeground(Cyan)

	// Title labels a pane.
	Title = lipgloss.NewStyle().Foreground(Cyan).Bold(true)

	// GhostText renders a non-committed completion suggestion.
	GhostText = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	// DiffAdd and DiffRemove color preview hunk lines.
	DiffAdd    = lipgloss.NewStyle().Foreground(Emerald)
	DiffRemove = lipgloss.NewStyle().Foreground(Rose)
	DiffMeta   = lipgloss.NewStyle().Foreground(TextMuted)

	// ErrorBanner surfaces a session failure.
	ErrorBanner = lipgloss.NewStyle().
			Foreground(Rose).
			Bold(true)

	// StatusBar is the bottom status line.
	StatusBar = lipgloss.NewStyle().Foreground(TextMuted)

	// StatusActive marks an in-flight request in the status line.
	StatusActive = lipgloss.NewStyle().Foreground(Amber)

	// UserLabel and AssistantLabel head chat turns.
	UserLabel      = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	AssistantLabel = lipgloss.NewStyle().Foreground(Purple).Bold(true)

	// Prompt styles the inline-edit instruction input marker.
	Prompt = lipgloss.NewStyle().Foreground(Amber).Bold(true)
)

// ColorProfile reports the terminal's color capability.
func ColorProfile() termenv.Profile {
	return termenv.ColorProfile()
}

// HasDarkBackground reports whether the terminal background is dark.
func HasDarkBackground() bool {
	return termenv.HasDarkBackground()
}
