package color

import (
	"github.com/charmbracelet/lipgloss"
)

// Initialize sets the terminal background mode for all adaptive styles.
// Call once at startup, before any styled output is rendered.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// Semantic styles shared across console output. Adaptive colors pick the
// variant matching the terminal background set via Initialize.
var (
	Success = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})

	Failure = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"}).
		Bold(true)

	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})

	Info = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})

	Muted = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "241"})

	Heading = lipgloss.NewStyle().Bold(true)
)
