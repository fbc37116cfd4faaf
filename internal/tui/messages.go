package tui

import (
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
)

type queueLoadedMsg struct {
	err   error
	queue []model.PendingTransaction
}

type reviewedMsg struct {
	err      error
	outcome  *engine.ReviewOutcome
	decision model.ReviewDecision
	found    bool
}
