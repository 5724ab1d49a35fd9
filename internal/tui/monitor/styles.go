package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"insp/internal/models"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	selectedStyle  = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	errStyle       = lipgloss.NewStyle().Foreground(errorColor)

	// Session status styles
	sessionStyles = map[models.SessionStatus]lipgloss.Style{
		models.SessionSuccess: lipgloss.NewStyle().Foreground(successColor),
		models.SessionPartial: lipgloss.NewStyle().Foreground(warningColor),
		models.SessionFailed:  lipgloss.NewStyle().Foreground(errorColor),
	}
)

func sessionStatusStyle(s models.SessionStatus) lipgloss.Style {
	if st, ok := sessionStyles[s]; ok {
		return st
	}
	return subtleStyle
}
