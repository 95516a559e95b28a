// Package theme holds the lipgloss styles used by the command-line output.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/formpoll/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for table headers and section titles.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// MutedStyle renders secondary details such as timestamps.
var MutedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// KeyStyle renders field names in detail views.
var KeyStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// PanelStyle wraps a detail view.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// SuccessStyle and ErrorStyle prefix command results.
var (
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorRed)
)

// StatusStyle returns a color-coded style for a form status.
func StatusStyle(status model.FormStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch status {
	case model.FormStatusPending:
		return base.Foreground(ColorYellow)
	case model.FormStatusCompleted:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}
