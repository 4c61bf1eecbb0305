// Package styles contains Lip Gloss style definitions.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"harbormast/internal/registry"
)

// Color palette.
var (
	PrimaryColor   = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	TextColor      = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#E5E7EB"}
	MutedColor     = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	ErrorColor     = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}
	WarnColor      = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	SuccessColor   = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	HighlightColor = lipgloss.AdaptiveColor{Light: "#EDE9FE", Dark: "#312E81"}
)

var (
	Title = lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true)

	Breadcrumb = lipgloss.NewStyle().
			Foreground(MutedColor)

	BreadcrumbActive = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true)

	StatusBar = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 1)

	// StaleBadge marks a listing served from an expired cache entry
	// while the refresh is in flight.
	StaleBadge = lipgloss.NewStyle().
			Foreground(WarnColor).
			Bold(true)

	ErrorBanner = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ErrorColor).
			Padding(0, 1)

	Spinner = lipgloss.NewStyle().
		Foreground(PrimaryColor)

	ItemTitle = lipgloss.NewStyle().
			Foreground(TextColor)

	ItemDesc = lipgloss.NewStyle().
			Foreground(MutedColor)

	SelectedItem = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Background(HighlightColor).
			Bold(true)
)

// SeverityStyle returns the style for a vulnerability severity.
func SeverityStyle(s registry.Severity) lipgloss.Style {
	switch s {
	case registry.SeverityCritical:
		return lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	case registry.SeverityHigh:
		return lipgloss.NewStyle().Foreground(ErrorColor)
	case registry.SeverityMedium:
		return lipgloss.NewStyle().Foreground(WarnColor)
	case registry.SeverityLow:
		return lipgloss.NewStyle().Foreground(SuccessColor)
	default:
		return lipgloss.NewStyle().Foreground(MutedColor)
	}
}
