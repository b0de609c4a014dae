package ui

import "github.com/charmbracelet/lipgloss"

// Color constants shared by the printer and the batch dashboard.
const (
	primaryColor = "#7C3AED" // purple
	successColor = "#10B981" // green
	warningColor = "#F59E0B" // amber
	errorColor   = "#EF4444" // red
	dimColor     = "#6B7280" // gray
)

// Style variables for consistent terminal rendering.
var (
	// TitleStyle renders titles in primary color with bold.
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// DimStyle renders dim/muted text.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	// SuccessStyle renders success messages in green.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(successColor))

	// ErrorStyle renders error messages in red.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	// WarningStyle renders warning messages in amber.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(warningColor))

	// ProgressFullStyle renders filled progress indicators.
	ProgressFullStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(successColor))

	// ProgressEmptyStyle renders empty progress indicators.
	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(dimColor))
)

// Unit status icons (pre-rendered strings).
var (
	// IconDone indicates a completed unit.
	IconDone = SuccessStyle.Render("✓")

	// IconRunning indicates a unit currently executing.
	IconRunning = WarningStyle.Render("▸")

	// IconPending indicates a unit waiting to start.
	IconPending = DimStyle.Render("○")

	// IconFailed indicates a failed unit.
	IconFailed = ErrorStyle.Render("✗")

	// IconPaused indicates a unit stopped at a PAUSE step.
	IconPaused = WarningStyle.Render("⏸")
)
