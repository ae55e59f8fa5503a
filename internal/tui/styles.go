package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = lipgloss.Color("#7C3AED")
	colorMuted  = lipgloss.Color("#6B7280")
	colorUser   = lipgloss.Color("#38BDF8")
	colorAI     = lipgloss.Color("#A3E635")
	colorError  = lipgloss.Color("#F87171")
	colorBorder = lipgloss.Color("#374151")
)

const sidebarWidth = 28

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F9FAFB")).
			Background(colorAccent).
			Padding(0, 1)

	modeStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(colorBorder).
			Padding(0, 1)

	sidebarFocusedStyle = sidebarStyle.BorderForeground(colorAccent)

	chatItemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB"))
	chatCursorStyle   = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	chatActiveStyle   = lipgloss.NewStyle().Foreground(colorAI)
	sidebarTitleStyle = lipgloss.NewStyle().Foreground(colorMuted).Bold(true).MarginBottom(1)

	userLabelStyle = lipgloss.NewStyle().Foreground(colorUser).Bold(true)
	aiLabelStyle   = lipgloss.NewStyle().Foreground(colorAI).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)

	statusStyle = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)

	inputBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorBorder)
	inputFocusedStyle = inputBorderStyle.BorderForeground(colorAccent)
)
