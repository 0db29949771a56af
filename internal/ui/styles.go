// Package ui renders human-readable CLI output: status lines, key/value
// tables and search result grids.
package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
// - Default (white/black): Primary text
// - Accent (soft purple #A78BFA): Names, identifiers, headers
// - Muted (gray): Secondary info, hints, row numbers
// - No colored success/error/warning - use unicode symbols only

var (
	// Accent style for property names, entity types, highlights
	Accent = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))

	// Muted style for secondary info and hints
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))

	// Bold style for emphasis
	Bold = lipgloss.NewStyle().Bold(true)

	// AccentBold combines accent color with bold
	AccentBold = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA")).Bold(true)
)

// DisableStyles replaces every style with a plain one. Used when output is
// not a terminal or NO_COLOR is set.
func DisableStyles() {
	plain := lipgloss.NewStyle()
	Accent = plain
	Muted = plain
	Bold = plain
	AccentBold = plain
}
