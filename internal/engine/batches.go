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

// BatchUpdate carries the user-editable batch fields. Nil fields are left alone.
type BatchUpdate struct {
	InstitutionName *string
	Status          *model.BatchStatus
}

// ListBatches returns the owner's batches, newest first.
func (e *Engine) ListBatches(ctx context.Context, owner int64, status model.BatchStatus, limit int) ([]model.ImportBatch, error) {
	return e.storage.ListBatches(ctx, service.BatchFilter{
		OwnerID: e.owner(owner),
		Status:  status,
		Limit:   limit,
	})
}

// GetBatch returns one of the owner's batches.
func (e *Engine) GetBatch(ctx context.Context, owner, batchID int64) (*model.ImportBatch, error) {
	return e.ownedBatch(ctx, e.storage, batchID, e.owner(owner))
}

// UpdateBatch edits batch metadata. The only status a user may set is
// CANCELLED; COMPLETED is reached through reviews alone.
func (e *Engine) UpdateBatch(ctx context.Context, owner, batchID int64, update BatchUpdate) (*model.ImportBatch, error) {
	if update.Status != nil && *update.Status != model.BatchCancelled {
		return nil, fmt.Errorf("%w: batch status can only be set to %s", common.ErrInvalidTransition, model.BatchCancelled)
	}

	var batch *model.ImportBatch
	err := e.inTx(ctx, func(tx service.Transaction) error {
		var err error
		batch, err = e.ownedBatch(ctx, tx, batchID, e.owner(owner))
		if err != nil {
			return err
		}
		if update.InstitutionName != nil {
			batch.InstitutionName = strings.TrimSpace(*update.InstitutionName)
		}
		if update.Status != nil {
			if err := transition(batch, *update.Status); err != nil {
				return err
			}
		}
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}
	if update.Status != nil {
		e.metrics.ObserveBatchTransition(batch.Status)
	}
	return batch, nil
}

// Cancel moves a non-terminal batch to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, owner, batchID int64) (*model.ImportBatch, error) {
	status := model.BatchCancelled
	return e.UpdateBatch(ctx, owner, batchID, BatchUpdate{Status: &status})
}

// Fail moves a non-terminal batch to FAILED with a message.
func (e *Engine) Fail(ctx context.Context, owner, batchID int64, message string) (*model.ImportBatch, error) {
	owner = e.owner(owner)
	var batch *model.ImportBatch
	err := e.inTx(ctx, func(tx service.Transaction) error {
		var err error
		batch, err = e.ownedBatch(ctx, tx, batchID, owner)
		if err != nil {
			return err
		}
		if err := transition(batch, model.BatchFailed); err != nil {
			return err
		}
		batch.ErrorMessage = message
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveBatchTransition(model.BatchFailed)
	return batch, nil
}

// DeleteBatch removes a batch with all of its pending transactions. found
// is false when the batch does not exist.
func (e *Engine) DeleteBatch(ctx context.Context, owner, batchID int64) (found bool, err error) {
	owner = e.owner(owner)
	if _, err := e.ownedBatch(ctx, e.storage, batchID, owner); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if e.checkpointer != nil {
		if _, err := e.checkpointer.AutoCheckpoint(ctx, "delete-batch"); err != nil {
			return false, fmt.Errorf("failed to checkpoint before deleting batch %d: %w", batchID, err)
		}
	}

	err = e.inTx(ctx, func(tx service.Transaction) error {
		if _, err := e.ownedBatch(ctx, tx, batchID, owner); err != nil {
			return err
		}
		return tx.DeleteBatch(ctx, batchID)
	})
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.logger.Info("Deleted batch", "batch_id", batchID)
	return true, nil
}

func transition(batch *model.ImportBatch, to model.BatchStatus) error {
	if !batch.Status.CanTransition(to) {
		return &common.TransitionError{
			Entity: fmt.Sprintf("batch %d", batch.ID),
			From:   string(batch.Status),
			To:     string(to),
		}
	}
	batch.Status = to
	return nil
}
