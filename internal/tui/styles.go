package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	accentColor = lipgloss.Color("#AA5CC3")
	dimGray     = lipgloss.Color("#6B7280")
	lightGray   = lipgloss.Color("#9CA3AF")
	white       = lipgloss.Color("#F9FAFB")
	green       = lipgloss.Color("#10B981")
	red         = lipgloss.Color("#EF4444")
	yellow      = lipgloss.Color("#F59E0B")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(white).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimGray)

	labelStyle = lipgloss.NewStyle().
			Foreground(lightGray)

	accentStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	successStyle = lipgloss.NewStyle().
			Foreground(green)

	errorStyle = lipgloss.NewStyle().
			Foreground(red)

	warnStyle = lipgloss.NewStyle().
			Foreground(yellow)
)
