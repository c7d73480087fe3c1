package ui

import "github.com/charmbracelet/lipgloss"

// Ember palette
const (
	ColorCharcoal = "#1C1B1A" // background
	ColorAsh      = "#8A8580" // labels/borders
	ColorAmber    = "#E0A458" // primary text/values
	ColorFlame    = "#D1495B" // alerts
	ColorSage     = "#9CAF88" // healthy metrics
)

var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorAsh)).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorAmber)).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorAsh))

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorSage))

	AlertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorFlame)).
			Bold(true)

	PausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorCharcoal)).
			Background(lipgloss.Color(ColorAmber)).
			Bold(true).
			Padding(0, 1)
)
