package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/model"
)

const descriptionWidth = 36

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{m.renderHeader()}

	switch m.state {
	case StateLoading:
		sections = append(sections, m.theme.Busy.Render("Loading review queue..."))
	case StateDone:
		sections = append(sections, m.renderDone())
	default:
		sections = append(sections, m.renderQueue())
		if txn := m.current(); txn != nil {
			sections = append(sections, m.renderDetail(txn))
		}
		if m.state == StateEditing {
			sections = append(sections, m.input.View())
		}
	}

	sections = append(sections, m.renderStatus(), m.help.View(m.keymap))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.theme.Header.Render(fmt.Sprintf("%s Review batch %d", cli.SpiceIcon, m.batchID))
	filter := "all pending"
	if m.needsReviewOnly {
		filter = "low confidence only"
	}
	sub := m.theme.Counts.Render(fmt.Sprintf(
		"%d to review · %s · approved %d · modified %d · rejected %d",
		len(m.queue), filter, m.summary.Approved, m.summary.Modified, m.summary.Rejected))
	return lipgloss.JoinVertical(lipgloss.Left, title, sub)
}

func (m Model) renderQueue() string {
	if len(m.queue) == 0 {
		return m.theme.Empty.Render("Nothing left to review in this view.")
	}

	start, end := m.window()
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		txn := m.queue[i]
		row := fmt.Sprintf("%s  %-*s  %12s  %-18s  %s",
			txn.Date.Format("2006-01-02"),
			descriptionWidth, truncate(txn.Description, descriptionWidth),
			txn.Amount.StringFixed(2),
			truncate(txn.PredictedCategory, 18),
			txn.ConfidenceLevel)
		if i == m.cursor {
			row = m.theme.Cursor.Render("> " + row)
		} else {
			row = m.theme.Row.Render("  " + row)
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}

// window returns the visible slice of the queue around the cursor.
func (m Model) window() (int, int) {
	rows := m.height - 16
	if rows < 5 {
		rows = 5
	}
	if len(m.queue) <= rows {
		return 0, len(m.queue)
	}
	start := m.cursor - rows/2
	if start < 0 {
		start = 0
	}
	if start+rows > len(m.queue) {
		start = len(m.queue) - rows
	}
	return start, start + rows
}

func (m Model) renderDetail(txn *model.PendingTransaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", m.theme.Description.Render(txn.Description))
	fmt.Fprintf(&b, "%s  %s %s  fitid %s\n",
		txn.Date.Format("Mon Jan 2, 2006"), txn.Amount.StringFixed(2), txn.Type, txn.FITID)

	predicted := txn.PredictedCategory
	if predicted == "" {
		predicted = "(uncategorized)"
	}
	fmt.Fprintf(&b, "Predicted: %s  %s", predicted, cli.FormatConfidence(txn.ConfidenceScore, txn.ConfidenceLevel))

	for i, s := range txn.Suggestions {
		fmt.Fprintf(&b, "\n  %d. %-24s %5.1f%%", i+1, s.Category, s.Confidence*100)
	}
	if txn.NeedsReview() {
		b.WriteString("\n" + m.theme.NeedsReview.Render("Needs review"))
	}
	return m.theme.Detail.Render(b.String())
}

func (m Model) renderDone() string {
	s := m.Summary()
	content := fmt.Sprintf("Approved: %d\nModified: %d\nRejected: %d\n\nAll transactions in batch %d are resolved.",
		s.Approved, s.Modified, s.Rejected, m.batchID)
	return cli.RenderBox(cli.CheckIcon+" Batch completed", content)
}

func (m Model) renderStatus() string {
	switch {
	case m.lastError != nil:
		return m.theme.Failure.Render("Error: " + m.lastError.Error())
	case m.state == StateSubmitting:
		return m.theme.Busy.Render("Saving...")
	case m.status != "":
		return m.theme.Message.Render(m.status)
	default:
		return ""
	}
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}
