package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReviewStatus is the review state of a pending transaction.
type ReviewStatus string

// Review status constants.
const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewModified ReviewStatus = "MODIFIED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// ParseReviewStatus parses a review status. Unknown values fall back to APPROVED.
func ParseReviewStatus(s string) ReviewStatus {
	switch ReviewStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case ReviewPending:
		return ReviewPending
	case ReviewModified:
		return ReviewModified
	case ReviewRejected:
		return ReviewRejected
	default:
		return ReviewApproved
	}
}

// IsResolution reports whether s is a valid outcome of a review action.
func (s ReviewStatus) IsResolution() bool {
	return s == ReviewApproved || s == ReviewModified || s == ReviewRejected
}

// PendingTransaction is a parsed transaction awaiting or past review.
type PendingTransaction struct {
	Date              time.Time
	CreatedAt         time.Time
	ReviewedAt        *time.Time
	Amount            decimal.Decimal
	FITID             string
	Description       string
	Type              TransactionType
	OFXType           string
	Payee             string
	Memo              string
	CheckNumber       string
	PredictedCategory string
	ConfidenceLevel   ConfidenceLevel
	UserCategory      string
	ReviewStatus      ReviewStatus
	Notes             string
	Suggestions       []Suggestion
	ID                int64
	BatchID           int64
	ConfidenceScore   float64
	Version           int
}

// FinalCategory is the user's category when set, otherwise the prediction.
func (p *PendingTransaction) FinalCategory() string {
	if p.UserCategory != "" {
		return p.UserCategory
	}
	return p.PredictedCategory
}

// NeedsReview reports whether the transaction belongs in the manual queue.
// The band and the raw score are both checked.
func (p *PendingTransaction) NeedsReview() bool {
	return p.ReviewStatus == ReviewPending &&
		(p.ConfidenceLevel == ConfidenceLow || p.ConfidenceScore < MediumConfidenceThreshold)
}

// NewPendingTransaction pairs a parsed transaction with its prediction.
func NewPendingTransaction(batchID int64, txn ParsedTransaction, pred PredictionResult) PendingTransaction {
	level := pred.ConfidenceLevel
	if level == "" {
		level = LevelForConfidence(pred.Confidence)
	}
	return PendingTransaction{
		BatchID:           batchID,
		FITID:             txn.FITID,
		Date:              txn.Date,
		Description:       txn.Description,
		Amount:            txn.Amount,
		Type:              txn.Type,
		OFXType:           txn.OFXType,
		Payee:             txn.Payee,
		Memo:              txn.Memo,
		CheckNumber:       txn.CheckNumber,
		PredictedCategory: pred.Category,
		ConfidenceScore:   pred.Confidence,
		ConfidenceLevel:   level,
		Suggestions:       pred.Suggestions,
		ReviewStatus:      ReviewPending,
	}
}

// ReviewDecision is a validated review action on one pending transaction.
type ReviewDecision struct {
	Category      string
	Status        ReviewStatus
	Notes         string
	BatchID       int64
	TransactionID int64
}
