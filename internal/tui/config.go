package tui

import (
	"time"

	"github.com/Veraticus/spice-ledger/internal/tui/themes"
)

// Config holds TUI configuration.
type Config struct {
	Theme           themes.Theme
	Owner           int64
	Width           int
	Height          int
	Timeout         time.Duration
	NeedsReviewOnly bool
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:   themes.ForEnvironment(),
		Width:   100,
		Height:  30,
		Timeout: 30 * time.Second,
	}
}

// WithTheme sets the visual theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithOwner sets the acting owner for every review.
func WithOwner(owner int64) Option {
	return func(c *Config) {
		c.Owner = owner
	}
}

// WithNeedsReviewOnly starts the queue filtered to low-confidence rows.
func WithNeedsReviewOnly(enabled bool) Option {
	return func(c *Config) {
		c.NeedsReviewOnly = enabled
	}
}
