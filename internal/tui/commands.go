package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// loadQueue fetches the batch's unresolved transactions.
func (m Model) loadQueue() tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	owner, batchID, needsReview, timeout := m.config.Owner, m.batchID, m.needsReviewOnly, m.config.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		txns, err := reviewer.ReviewQueue(ctx, owner, batchID, needsReview)
		if err != nil {
			return queueLoadedMsg{err: err}
		}
		queue := make([]model.PendingTransaction, 0, len(txns))
		for _, txn := range txns {
			if txn.ReviewStatus == model.ReviewPending {
				queue = append(queue, txn)
			}
		}
		return queueLoadedMsg{queue: queue}
	}
}

// submit sends one review decision through the workflow.
func (m Model) submit(d model.ReviewDecision) tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	owner, timeout := m.config.Owner, m.config.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		outcome, found, err := reviewer.Review(ctx, owner, d)
		return reviewedMsg{decision: d, outcome: outcome, found: found, err: err}
	}
}
