package tui

import "github.com/charmbracelet/lipgloss"

const (
	accentColor  = "#06B6D4" // Cyan
	successColor = "#10B981" // Green
	errorColor   = "#EF4444" // Red
	dimColor     = "#6B7280" // Gray
	chipColor    = "#1E3A8A"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(accentColor)).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	selectedModelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(accentColor)).
				Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(accentColor)).
			Padding(0, 1)

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(accentColor))

	chipStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(chipColor)).
			Foreground(lipgloss.Color("#DBEAFE")).
			Padding(0, 1)

	logErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	toastStyles = map[string]lipgloss.Style{
		"success": lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color(successColor)).Padding(0, 1),
		"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color(errorColor)).Padding(0, 1),
		"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color(dimColor)).Padding(0, 1),
	}
)
