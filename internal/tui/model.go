// Package tui implements the interactive review queue for an import batch.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/tui/themes"
)

// Reviewer is the part of the review workflow the TUI drives.
type Reviewer interface {
	ReviewQueue(ctx context.Context, owner, batchID int64, needsReview bool) ([]model.PendingTransaction, error)
	Review(ctx context.Context, owner int64, d model.ReviewDecision) (*engine.ReviewOutcome, bool, error)
}

// State represents the current state of the TUI.
type State int

const (
	StateLoading State = iota
	StateList
	StateEditing
	StateSubmitting
	StateDone
)

// Summary reports what a review session resolved.
type Summary struct {
	Approved  int
	Modified  int
	Rejected  int
	Remaining int
	Completed bool
}

// Model holds the review queue state.
type Model struct {
	ctx             context.Context
	reviewer        Reviewer
	lastError       error
	theme           themes.Theme
	status          string
	queue           []model.PendingTransaction
	help            help.Model
	input           textinput.Model
	keymap          KeyMap
	config          Config
	summary         Summary
	batchID         int64
	cursor          int
	suggestion      int
	width           int
	height          int
	state           State
	needsReviewOnly bool
	showHelp        bool
	quitting        bool
}

// New creates the review model for one batch.
func New(ctx context.Context, reviewer Reviewer, batchID int64, opts ...Option) Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	input := textinput.New()
	input.Placeholder = "category"
	input.Prompt = "Category: "
	input.CharLimit = 64

	return Model{
		ctx:             ctx,
		reviewer:        reviewer,
		theme:           cfg.Theme,
		help:            help.New(),
		input:           input,
		keymap:          DefaultKeyMap(),
		config:          cfg,
		batchID:         batchID,
		width:           cfg.Width,
		height:          cfg.Height,
		state:           StateLoading,
		needsReviewOnly: cfg.NeedsReviewOnly,
	}
}

// Init loads the queue.
func (m Model) Init() tea.Cmd {
	return m.loadQueue()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case queueLoadedMsg:
		m.handleQueueLoaded(msg)
		return m, nil

	case reviewedMsg:
		m.handleReviewed(msg)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.ForceQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.state == StateEditing {
			return m.handleEditingKey(msg)
		}
		return m.handleListKey(msg)
	}

	if m.state == StateEditing {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Summary reports the session's results so far.
func (m Model) Summary() Summary {
	s := m.summary
	s.Remaining = len(m.queue)
	return s
}

// Err returns the last error shown to the user.
func (m Model) Err() error {
	return m.lastError
}

func (m *Model) handleQueueLoaded(msg queueLoadedMsg) {
	if m.state != StateDone {
		m.state = StateList
	}
	if msg.err != nil {
		m.lastError = msg.err
		return
	}
	m.lastError = nil
	m.queue = msg.queue
	m.clampCursor()
}

func (m *Model) handleReviewed(msg reviewedMsg) {
	m.state = StateList
	if msg.err != nil {
		m.lastError = msg.err
		m.status = ""
		return
	}
	m.lastError = nil
	m.remove(msg.decision.TransactionID)

	if !msg.found {
		m.status = fmt.Sprintf("Transaction %d is no longer in batch %d", msg.decision.TransactionID, m.batchID)
		return
	}

	txn := msg.outcome.Transaction
	switch msg.decision.Status {
	case model.ReviewApproved:
		m.summary.Approved++
		m.status = fmt.Sprintf("Approved %s as %s", txn.Description, txn.FinalCategory())
	case model.ReviewModified:
		m.summary.Modified++
		m.status = fmt.Sprintf("Recategorized %s as %s", txn.Description, txn.FinalCategory())
	case model.ReviewRejected:
		m.summary.Rejected++
		m.status = fmt.Sprintf("Rejected %s", txn.Description)
	}

	if msg.outcome.Completed {
		m.summary.Completed = true
		m.state = StateDone
		m.status = fmt.Sprintf("Batch %d completed", m.batchID)
	}
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	}

	if m.state != StateList {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keymap.Refresh):
		m.state = StateLoading
		return m, m.loadQueue()
	case key.Matches(msg, m.keymap.Filter):
		m.needsReviewOnly = !m.needsReviewOnly
		m.state = StateLoading
		return m, m.loadQueue()
	}

	if len(m.queue) == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.queue)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keymap.Home):
		m.cursor = 0
	case key.Matches(msg, m.keymap.End):
		m.cursor = len(m.queue) - 1
	case key.Matches(msg, m.keymap.Approve):
		return m.decide(model.ReviewApproved, "")
	case key.Matches(msg, m.keymap.Reject):
		return m.decide(model.ReviewRejected, "")
	case key.Matches(msg, m.keymap.Modify):
		m.state = StateEditing
		m.suggestion = 0
		m.input.SetValue(alternativeFor(m.current()))
		m.input.CursorEnd()
		m.input.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) handleEditingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Cancel):
		m.state = StateList
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keymap.Next):
		txn := m.current()
		if txn != nil && len(txn.Suggestions) > 0 {
			suggestions := txn.Suggestions
			m.suggestion = (m.suggestion + 1) % len(suggestions)
			m.input.SetValue(suggestions[m.suggestion].Category)
			m.input.CursorEnd()
		}
		return m, nil
	case key.Matches(msg, m.keymap.Submit):
		category := strings.TrimSpace(m.input.Value())
		if category == "" {
			m.lastError = errors.New("category cannot be empty")
			return m, nil
		}
		m.input.Blur()
		return m.decide(model.ReviewModified, category)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) decide(status model.ReviewStatus, category string) (tea.Model, tea.Cmd) {
	txn := m.current()
	m.state = StateSubmitting
	m.lastError = nil
	return m, m.submit(model.ReviewDecision{
		Category:      category,
		Status:        status,
		BatchID:       m.batchID,
		TransactionID: txn.ID,
	})
}

func (m Model) current() *model.PendingTransaction {
	if len(m.queue) == 0 {
		return nil
	}
	return &m.queue[m.cursor]
}

func (m *Model) remove(id int64) {
	for i := range m.queue {
		if m.queue[i].ID == id {
			queue := make([]model.PendingTransaction, 0, len(m.queue)-1)
			queue = append(queue, m.queue[:i]...)
			m.queue = append(queue, m.queue[i+1:]...)
			break
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.queue) {
		m.cursor = len(m.queue) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// alternativeFor prefills the category input with the best suggestion that
// differs from the prediction.
func alternativeFor(txn *model.PendingTransaction) string {
	if txn == nil {
		return ""
	}
	for _, s := range txn.Suggestions {
		if s.Category != txn.PredictedCategory {
			return s.Category
		}
	}
	return txn.PredictedCategory
}
