// Package service defines the interfaces shared between the pipeline components.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// BatchFilter narrows import batch queries.
type BatchFilter struct {
	Status  model.BatchStatus
	OwnerID int64
	Limit   int
}

// PendingFilter narrows pending transaction queries.
type PendingFilter struct {
	Status      model.ReviewStatus
	BatchID     int64
	OwnerID     int64
	NeedsReview bool
	Limit       int
}

// TrainingJobFilter narrows training job queries.
type TrainingJobFilter struct {
	OwnerID int64
	Limit   int
}

// Repository holds the keyed lookups and mutations used by the pipeline.
type Repository interface {
	// Import batches
	CreateBatch(ctx context.Context, batch *model.ImportBatch) error
	GetBatch(ctx context.Context, id int64) (*model.ImportBatch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.ImportBatch, error)
	UpdateBatch(ctx context.Context, batch *model.ImportBatch) error
	DeleteBatch(ctx context.Context, id int64) error

	// Pending transactions
	InsertPendingTransaction(ctx context.Context, txn *model.PendingTransaction) (bool, error)
	ExistingFITIDs(ctx context.Context, fitids []string) (map[string]bool, error)
	GetPendingTransaction(ctx context.Context, id int64) (*model.PendingTransaction, error)
	ListPendingTransactions(ctx context.Context, filter PendingFilter) ([]model.PendingTransaction, error)
	UpdatePendingTransaction(ctx context.Context, txn *model.PendingTransaction) error
	DeletePendingTransactions(ctx context.Context, ids []int64) (int64, error)
	CountUnreviewed(ctx context.Context, batchID int64) (int, error)
	ListLabeledTransactions(ctx context.Context) ([]model.PendingTransaction, error)

	// Training jobs
	CreateTrainingJob(ctx context.Context, job *model.TrainingJob) error
	UpdateTrainingJob(ctx context.Context, job *model.TrainingJob) error
	GetTrainingJob(ctx context.Context, id int64) (*model.TrainingJob, error)
	ListTrainingJobs(ctx context.Context, filter TrainingJobFilter) ([]model.TrainingJob, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Repository

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction is one unit of work. Every Repository method runs inside it.
type Transaction interface {
	Repository
	Commit() error
	Rollback() error
}

// Categorizer scores parsed transactions with the active model.
type Categorizer interface {
	PredictTransactions(ctx context.Context, txns []model.ParsedTransaction) ([]model.PredictionResult, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
