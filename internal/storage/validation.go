package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidBatch    = errors.New("invalid import batch")
	ErrInvalidPending  = errors.New("invalid pending transaction")
	ErrInvalidJob      = errors.New("invalid training job")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidIdentity = errors.New("invalid id")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateID(id int64, paramName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s=%d", ErrInvalidIdentity, paramName, id)
	}
	return nil
}

// validateBatch validates an import batch before it is written.
func validateBatch(batch *model.ImportBatch) error {
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}
	if strings.TrimSpace(batch.Filename) == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidBatch)
	}
	if !batch.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, batch.Status)
	}
	if batch.ProcessedTransactions < 0 || batch.TotalTransactions < 0 {
		return fmt.Errorf("%w: negative transaction counts", ErrInvalidBatch)
	}
	return nil
}

// validatePending validates a pending transaction before it is written.
func validatePending(txn *model.PendingTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: pending transaction", ErrNilParameter)
	}
	if txn.BatchID <= 0 {
		return fmt.Errorf("%w: missing batch", ErrInvalidPending)
	}
	if strings.TrimSpace(txn.FITID) == "" {
		return fmt.Errorf("%w: missing fitid", ErrInvalidPending)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidPending)
	}
	if txn.Type != model.TypeDebit && txn.Type != model.TypeCredit {
		return fmt.Errorf("%w: type %q", ErrInvalidPending, txn.Type)
	}
	switch txn.ReviewStatus {
	case model.ReviewPending, model.ReviewApproved, model.ReviewModified, model.ReviewRejected:
	default:
		return fmt.Errorf("%w: review status %q", ErrInvalidStatus, txn.ReviewStatus)
	}
	if txn.ConfidenceScore < 0 || txn.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidPending)
	}
	return nil
}

// validateJob validates a training job before it is written.
func validateJob(job *model.TrainingJob) error {
	if job == nil {
		return fmt.Errorf("%w: training job", ErrNilParameter)
	}
	switch job.Status {
	case model.TrainingRunning, model.TrainingCompleted, model.TrainingFailed:
	default:
		return fmt.Errorf("%w: training status %q", ErrInvalidStatus, job.Status)
	}
	switch job.Source {
	case model.SourceManualCSV, model.SourceAutoRetrain:
	default:
		return fmt.Errorf("%w: source %q", ErrInvalidJob, job.Source)
	}
	return nil
}
