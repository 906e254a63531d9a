package ui

import "github.com/charmbracelet/lipgloss"

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF") // Cyan: primary accent
	colorAccent  = lipgloss.Color("#FFD700") // Gold: warnings
	colorSuccess = lipgloss.Color("#00E676") // Green: ok
	colorDanger  = lipgloss.Color("#FF5252") // Red: failures
	colorMuted   = lipgloss.Color("#636363") // Gray: de-emphasized
	colorBlue    = lipgloss.Color("#5B8DEF") // Blue: working
)

// Status icons.
const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconWorking = "▶"
	iconRun     = "◆"
)

var (
	styleBanner = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 2)

	styleTitle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleOK      = lipgloss.NewStyle().Foreground(colorSuccess)
	styleOKBold  = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleFailed  = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleWorking = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(colorMuted)
	styleBold    = lipgloss.NewStyle().Bold(true)

	styleHeader = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
)
