// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

// Batch status constants.
const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchReview     BatchStatus = "REVIEW"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:    {BatchProcessing, BatchFailed, BatchCancelled},
	BatchProcessing: {BatchReview, BatchFailed, BatchCancelled},
	BatchReview:     {BatchCompleted, BatchFailed, BatchCancelled},
}

// IsValid reports whether s is a known batch status.
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchPending, BatchProcessing, BatchReview, BatchCompleted, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchCancelled
}

// CanTransition reports whether the batch state machine allows s -> to.
func (s BatchStatus) CanTransition(to BatchStatus) bool {
	for _, next := range batchTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ImportBatch is one statement upload.
type ImportBatch struct {
	CreatedAt             time.Time
	UpdatedAt             time.Time
	PeriodStart           *time.Time
	PeriodEnd             *time.Time
	ClosingBalance        decimal.NullDecimal
	Filename              string
	FilePath              string
	Status                BatchStatus
	InstitutionName       string
	AccountID             string
	ErrorMessage          string
	ID                    int64
	OwnerID               int64
	TotalTransactions     int
	ProcessedTransactions int
	Version               int
}

// ImportSummary aggregates the transactions of one parsed statement.
type ImportSummary struct {
	Balance     decimal.NullDecimal
	Available   decimal.NullDecimal
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	Total       int
	DebitCount  int
	CreditCount int
}

// Summarize computes debit/credit counts and totals for a statement.
func Summarize(stmt *Statement) ImportSummary {
	summary := ImportSummary{
		Balance:   stmt.Balance,
		Available: stmt.AvailableBalance,
		Total:     len(stmt.Transactions),
	}
	for _, txn := range stmt.Transactions {
		if txn.Type == TypeCredit {
			summary.CreditCount++
			summary.CreditTotal = summary.CreditTotal.Add(txn.Amount)
			continue
		}
		summary.DebitCount++
		summary.DebitTotal = summary.DebitTotal.Add(txn.Amount.Abs())
	}
	return summary
}
