package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run opens the review queue for a batch and blocks until the user quits
// or ctx is canceled.
func Run(ctx context.Context, reviewer Reviewer, batchID int64, opts ...Option) (Summary, error) {
	if reviewer == nil {
		return Summary{}, fmt.Errorf("reviewer is required")
	}

	program := tea.NewProgram(
		New(ctx, reviewer, batchID, opts...),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)
	final, err := program.Run()
	if err != nil {
		return Summary{}, fmt.Errorf("review session failed: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return Summary{}, fmt.Errorf("unexpected model type %T", final)
	}
	return m.Summary(), nil
}
