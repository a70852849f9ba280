package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the resolved styles for the current terminal background.
type Theme struct {
	Header   lipgloss.Style
	Footer   lipgloss.Style
	Notice   lipgloss.Style
	Warning  lipgloss.Style
	Danger   lipgloss.Style
	Success  lipgloss.Style
	Muted    lipgloss.Style
	TableBox lipgloss.Style
}

// NewTheme picks colors for the detected background.
func NewTheme() Theme {
	dark := termenv.HasDarkBackground()
	accent := lipgloss.Color("63")
	muted := lipgloss.Color("243")
	if !dark {
		accent = lipgloss.Color("27")
		muted = lipgloss.Color("245")
	}
	return Theme{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1),
		Footer:   lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		Notice:   lipgloss.NewStyle().Foreground(accent),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Danger:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Muted:    lipgloss.NewStyle().Foreground(muted),
		TableBox: lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(muted),
	}
}
