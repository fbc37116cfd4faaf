package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLevelForConfidence(t *testing.T) {
	tests := []struct {
		want       ConfidenceLevel
		confidence float64
	}{
		{ConfidenceHigh, 1.0},
		{ConfidenceHigh, 0.80},
		{ConfidenceMedium, 0.7999},
		{ConfidenceMedium, 0.60},
		{ConfidenceLow, 0.5999},
		{ConfidenceLow, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForConfidence(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestSynthesizeFITID(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("-42.50")

	a := SynthesizeFITID("12345", date, amount, "COFFEE SHOP")
	b := SynthesizeFITID("12345", date, decimal.RequireFromString("-42.5"), "COFFEE SHOP")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	assert.NotEqual(t, a, SynthesizeFITID("12345", date, amount, "COFFEE SHOP 2"))
	assert.NotEqual(t, a, SynthesizeFITID("99999", date, amount, "COFFEE SHOP"))
	assert.NotEqual(t, a, SynthesizeFITID("12345", date.AddDate(0, 0, 1), amount, "COFFEE SHOP"))
}

func TestBuildDescription(t *testing.T) {
	assert.Equal(t, "AMAZON Order 123", BuildDescription("AMAZON", "  Order   123 "))
	assert.Equal(t, "AMAZON", BuildDescription("AMAZON", "AMAZON"))
	assert.Equal(t, "memo only", BuildDescription("", "memo only"))
	assert.Equal(t, "", BuildDescription("", "   "))
}

func TestTypeForAmount(t *testing.T) {
	assert.Equal(t, TypeCredit, TypeForAmount(decimal.NewFromInt(10)))
	assert.Equal(t, TypeCredit, TypeForAmount(decimal.Zero))
	assert.Equal(t, TypeDebit, TypeForAmount(decimal.NewFromFloat(-0.01)))
}

func TestParseTransactionType(t *testing.T) {
	typ, ok := ParseTransactionType(" Credito ")
	assert.True(t, ok)
	assert.Equal(t, TypeCredit, typ)

	typ, ok = ParseTransactionType("DEBIT")
	assert.True(t, ok)
	assert.Equal(t, TypeDebit, typ)

	_, ok = ParseTransactionType("transfer")
	assert.False(t, ok)
}

func TestBatchStatusTransitions(t *testing.T) {
	assert.True(t, BatchPending.CanTransition(BatchProcessing))
	assert.True(t, BatchProcessing.CanTransition(BatchReview))
	assert.True(t, BatchReview.CanTransition(BatchCompleted))
	assert.False(t, BatchProcessing.CanTransition(BatchCompleted))
	assert.False(t, BatchPending.CanTransition(BatchReview))

	for _, from := range []BatchStatus{BatchPending, BatchProcessing, BatchReview} {
		assert.True(t, from.CanTransition(BatchFailed), from)
		assert.True(t, from.CanTransition(BatchCancelled), from)
		assert.False(t, from.IsTerminal(), from)
	}
	for _, from := range []BatchStatus{BatchCompleted, BatchFailed, BatchCancelled} {
		assert.True(t, from.IsTerminal(), from)
		assert.False(t, from.CanTransition(BatchFailed), from)
		assert.False(t, from.CanTransition(BatchCancelled), from)
	}
}

func TestParseReviewStatus(t *testing.T) {
	assert.Equal(t, ReviewModified, ParseReviewStatus("modified"))
	assert.Equal(t, ReviewRejected, ParseReviewStatus(" REJECTED "))
	assert.Equal(t, ReviewApproved, ParseReviewStatus("approved"))
	assert.Equal(t, ReviewApproved, ParseReviewStatus("whatever"))
	assert.Equal(t, ReviewApproved, ParseReviewStatus(""))
}

func TestPendingTransactionDerived(t *testing.T) {
	tests := []struct {
		name   string
		txn    PendingTransaction
		review bool
	}{
		{"low band", PendingTransaction{ReviewStatus: ReviewPending, ConfidenceLevel: ConfidenceLow, ConfidenceScore: 0.9}, true},
		{"score below threshold", PendingTransaction{ReviewStatus: ReviewPending, ConfidenceLevel: ConfidenceMedium, ConfidenceScore: 0.59}, true},
		{"medium", PendingTransaction{ReviewStatus: ReviewPending, ConfidenceLevel: ConfidenceMedium, ConfidenceScore: 0.6}, false},
		{"high", PendingTransaction{ReviewStatus: ReviewPending, ConfidenceLevel: ConfidenceHigh, ConfidenceScore: 0.95}, false},
		{"already reviewed", PendingTransaction{ReviewStatus: ReviewApproved, ConfidenceLevel: ConfidenceLow, ConfidenceScore: 0.1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.review, tt.txn.NeedsReview())
		})
	}

	p := PendingTransaction{PredictedCategory: "Food"}
	assert.Equal(t, "Food", p.FinalCategory())
	p.UserCategory = "Groceries"
	assert.Equal(t, "Groceries", p.FinalCategory())
}

func TestSummarize(t *testing.T) {
	stmt := &Statement{Transactions: []ParsedTransaction{
		{Amount: decimal.RequireFromString("-10.50"), Type: TypeDebit},
		{Amount: decimal.RequireFromString("-4.50"), Type: TypeDebit},
		{Amount: decimal.RequireFromString("100"), Type: TypeCredit},
	}}

	summary := Summarize(stmt)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.DebitCount)
	assert.Equal(t, 1, summary.CreditCount)
	assert.True(t, summary.DebitTotal.Equal(decimal.NewFromInt(15)))
	assert.True(t, summary.CreditTotal.Equal(decimal.NewFromInt(100)))
}
