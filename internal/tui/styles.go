package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the dashboard color scheme.
type Styles struct {
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	Header    lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
}

func DefaultStyles() Styles {
	accent := lipgloss.Color("#8BC34A")
	muted := lipgloss.Color("241")
	red := lipgloss.Color("#e53935")

	return Styles{
		Tab: lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(muted),
		ActiveTab: lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(accent).
			Underline(true),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		Error: lipgloss.NewStyle().
			Foreground(red),
		Muted: lipgloss.NewStyle().
			Foreground(muted),
	}
}
