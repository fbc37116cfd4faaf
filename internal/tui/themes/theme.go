// Package themes holds the palettes of the review queue.
package themes

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Theme styles each region of the review queue.
type Theme struct {
	Header      lipgloss.Style
	Counts      lipgloss.Style
	Row         lipgloss.Style
	Cursor      lipgloss.Style
	Detail      lipgloss.Style
	Description lipgloss.Style
	NeedsReview lipgloss.Style
	Busy        lipgloss.Style
	Message     lipgloss.Style
	Failure     lipgloss.Style
	Empty       lipgloss.Style
}

// Default is the colored palette.
var Default = Theme{
	Header: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#fafafa")).
		MarginBottom(1),
	Counts: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#a3a3a3")),
	Row: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#fafafa")),
	Cursor: lipgloss.NewStyle().
		Background(lipgloss.Color("#7c3aed")).
		Foreground(lipgloss.Color("#fafafa")).
		Bold(true),
	Detail: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#404040")).
		Padding(0, 1),
	Description: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#fafafa")),
	NeedsReview: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#f59e0b")).
		Bold(true),
	Busy: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#737373")).
		Italic(true),
	Message: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3b82f6")),
	Failure: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ef4444")).
		Bold(true),
	Empty: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10b981")).
		Bold(true),
}

// Plain relies on weight and borders only.
var Plain = Theme{
	Header:      lipgloss.NewStyle().Bold(true).MarginBottom(1),
	Counts:      lipgloss.NewStyle(),
	Row:         lipgloss.NewStyle(),
	Cursor:      lipgloss.NewStyle().Reverse(true),
	Detail:      lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
	Description: lipgloss.NewStyle().Bold(true),
	NeedsReview: lipgloss.NewStyle().Bold(true),
	Busy:        lipgloss.NewStyle().Italic(true),
	Message:     lipgloss.NewStyle(),
	Failure:     lipgloss.NewStyle().Bold(true),
	Empty:       lipgloss.NewStyle().Bold(true),
}

// ForEnvironment returns Plain when NO_COLOR is set and Default otherwise.
func ForEnvironment() Theme {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return Plain
	}
	return Default
}
