package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// ErrInvalidDecision rejects a review action before it reaches storage.
var ErrInvalidDecision = errors.New("invalid review decision")

// ReviewOutcome is the result of one review action.
type ReviewOutcome struct {
	Transaction *model.PendingTransaction
	Batch       *model.ImportBatch
	Completed   bool
}

// ValidateDecision checks a review action at ingress.
func ValidateDecision(d model.ReviewDecision) error {
	if d.BatchID <= 0 || d.TransactionID <= 0 {
		return fmt.Errorf("%w: batch and transaction ids are required", ErrInvalidDecision)
	}
	if !d.Status.IsResolution() {
		return fmt.Errorf("%w: status %q is not a review outcome", ErrInvalidDecision, d.Status)
	}
	if d.Status == model.ReviewModified && strings.TrimSpace(d.Category) == "" {
		return fmt.Errorf("%w: a modified transaction needs a category", ErrInvalidDecision)
	}
	return nil
}

// Review resolves one pending transaction and completes its batch when it
// was the last unresolved one. found is false when the transaction does not
// exist in the given batch.
func (e *Engine) Review(ctx context.Context, owner int64, d model.ReviewDecision) (outcome *ReviewOutcome, found bool, err error) {
	if err := ValidateDecision(d); err != nil {
		return nil, false, err
	}
	owner = e.owner(owner)

	err = e.inTx(ctx, func(tx service.Transaction) error {
		outcome, found = nil, false

		batch, err := e.ownedBatch(ctx, tx, d.BatchID, owner)
		if err != nil {
			return err
		}
		txn, err := tx.GetPendingTransaction(ctx, d.TransactionID)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if txn.BatchID != batch.ID {
			return nil
		}
		found = true

		if batch.Status.IsTerminal() {
			return &common.TransitionError{
				Entity: fmt.Sprintf("transaction %d of %s batch %d", txn.ID, batch.Status, batch.ID),
				From:   string(txn.ReviewStatus),
				To:     string(d.Status),
			}
		}
		if txn.ReviewStatus != model.ReviewPending {
			return &common.TransitionError{
				Entity: fmt.Sprintf("transaction %d", txn.ID),
				From:   string(txn.ReviewStatus),
				To:     string(d.Status),
			}
		}

		reviewedAt := e.now().UTC()
		txn.ReviewStatus = d.Status
		txn.UserCategory = strings.TrimSpace(d.Category)
		if txn.UserCategory == "" && d.Status == model.ReviewApproved {
			txn.UserCategory = txn.PredictedCategory
		}
		txn.Notes = d.Notes
		txn.ReviewedAt = &reviewedAt
		if err := tx.UpdatePendingTransaction(ctx, txn); err != nil {
			return err
		}

		completed, err := completeIfResolved(ctx, tx, batch)
		if err != nil {
			return err
		}
		outcome = &ReviewOutcome{Transaction: txn, Batch: batch, Completed: completed}
		return nil
	})
	if err != nil || !found {
		if errors.Is(err, common.ErrNotFound) {
			return nil, false, nil
		}
		return nil, found, err
	}

	e.metrics.ObserveReview(d.Status)
	if outcome.Completed {
		e.metrics.ObserveBatchTransition(model.BatchCompleted)
		e.logger.Info("Batch completed", "batch_id", outcome.Batch.ID)
	}
	e.logger.Debug("Reviewed transaction",
		"batch_id", d.BatchID,
		"fitid", outcome.Transaction.FITID,
		"status", d.Status,
		"category", outcome.Transaction.UserCategory)
	return outcome, true, nil
}

// completeIfResolved moves a REVIEW batch to COMPLETED once none of its
// transactions are PENDING.
func completeIfResolved(ctx context.Context, repo service.Repository, batch *model.ImportBatch) (bool, error) {
	if batch.Status != model.BatchReview {
		return false, nil
	}
	remaining, err := repo.CountUnreviewed(ctx, batch.ID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	batch.Status = model.BatchCompleted
	if err := repo.UpdateBatch(ctx, batch); err != nil {
		return false, err
	}
	return true, nil
}

// CompleteIfResolved re-runs the completion check for one batch.
func (e *Engine) CompleteIfResolved(ctx context.Context, batchID int64) (bool, error) {
	var completed bool
	err := e.inTx(ctx, func(tx service.Transaction) error {
		batch, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		completed, err = completeIfResolved(ctx, tx, batch)
		return err
	})
	if err != nil {
		return false, err
	}
	if completed {
		e.metrics.ObserveBatchTransition(model.BatchCompleted)
	}
	return completed, nil
}

// ReviewQueue lists a batch's transactions by date. With needsReview set
// only the low-confidence PENDING ones are returned.
func (e *Engine) ReviewQueue(ctx context.Context, owner, batchID int64, needsReview bool) ([]model.PendingTransaction, error) {
	if _, err := e.ownedBatch(ctx, e.storage, batchID, e.owner(owner)); err != nil {
		return nil, err
	}
	return e.storage.ListPendingTransactions(ctx, service.PendingFilter{
		BatchID:     batchID,
		NeedsReview: needsReview,
	})
}

// Discard removes one pending transaction from a batch and re-runs the
// completion check. found is false when the transaction is not in the batch.
func (e *Engine) Discard(ctx context.Context, owner, batchID, transactionID int64) (found bool, err error) {
	owner = e.owner(owner)
	var completed bool

	err = e.inTx(ctx, func(tx service.Transaction) error {
		found, completed = false, false

		batch, err := e.ownedBatch(ctx, tx, batchID, owner)
		if err != nil {
			return err
		}
		txn, err := tx.GetPendingTransaction(ctx, transactionID)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if txn.BatchID != batch.ID {
			return nil
		}
		n, err := tx.DeletePendingTransactions(ctx, []int64{transactionID})
		if err != nil {
			return err
		}
		found = n > 0

		batch.ProcessedTransactions = max(batch.ProcessedTransactions-int(n), 0)
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return err
		}
		completed, err = completeIfResolved(ctx, tx, batch)
		return err
	})
	if err != nil {
		return false, err
	}
	if completed {
		e.metrics.ObserveBatchTransition(model.BatchCompleted)
	}
	return found, nil
}

// ownedBatch loads a batch and checks that owner may act on it.
func (e *Engine) ownedBatch(ctx context.Context, repo service.Repository, batchID, owner int64) (*model.ImportBatch, error) {
	batch, err := repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.OwnerID != owner {
		return nil, fmt.Errorf("batch %d: %w", batchID, common.ErrForbidden)
	}
	return batch, nil
}
