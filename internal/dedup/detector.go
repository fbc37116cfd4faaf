package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/metrics"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// ErrTooManyCandidates is returned when a detection pass would compare more
// pending transactions than allowed. It is retryable.
var ErrTooManyCandidates = errors.New("too many duplicate candidates")

// Scope limits which pending transactions are compared.
type Scope string

// Detection scopes.
const (
	ScopeGlobal Scope = "global"
	ScopeBatch  Scope = "batch"
	ScopeOwner  Scope = "owner"
)

// DefaultMaxCandidates bounds one detection pass.
const DefaultMaxCandidates = 5000

// Query selects the candidate set of one detection pass.
type Query struct {
	Scope   Scope
	BatchID int64
	OwnerID int64
}

// Completer re-runs the batch completion check after rows are removed.
type Completer interface {
	CompleteIfResolved(ctx context.Context, batchID int64) (bool, error)
}

// Checkpointer snapshots the database before a merge.
type Checkpointer interface {
	AutoCheckpoint(ctx context.Context, operation string) (*storage.CheckpointInfo, error)
}

// Detector finds and merges duplicate pending transactions.
type Detector struct {
	storage       service.Storage
	completer     Completer
	checkpointer  Checkpointer
	metrics       *metrics.Pipeline
	logger        *slog.Logger
	criteria      Criteria
	maxCandidates int
}

// Option customizes a Detector.
type Option func(*Detector)

// WithLogger sets the detector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// WithMetrics records detection metrics on m.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithCompleter re-runs batch completion after merges.
func WithCompleter(c Completer) Option {
	return func(d *Detector) { d.completer = c }
}

// WithCheckpointer snapshots the database before merges.
func WithCheckpointer(c Checkpointer) Option {
	return func(d *Detector) { d.checkpointer = c }
}

// NewDetector creates a detector.
func NewDetector(store service.Storage, criteria Criteria, maxCandidates int, opts ...Option) *Detector {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	d := &Detector{
		storage:       store,
		criteria:      criteria.withDefaults(),
		maxCandidates: maxCandidates,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindDuplicates groups still-PENDING transactions in scope. thresholdDays
// overrides the configured window when non-negative.
func (d *Detector) FindDuplicates(ctx context.Context, q Query, thresholdDays int) ([]Group, error) {
	filter := service.PendingFilter{Status: model.ReviewPending, Limit: d.maxCandidates + 1}
	switch q.Scope {
	case ScopeBatch:
		if q.BatchID <= 0 {
			return nil, fmt.Errorf("%w: batch scope needs a batch id", common.ErrInvalidConfig)
		}
		filter.BatchID = q.BatchID
	case ScopeOwner:
		if q.OwnerID <= 0 {
			return nil, fmt.Errorf("%w: owner scope needs an owner id", common.ErrInvalidConfig)
		}
		filter.OwnerID = q.OwnerID
	case ScopeGlobal, "":
		q.Scope = ScopeGlobal
	default:
		return nil, fmt.Errorf("%w: unknown duplicate scope %q", common.ErrInvalidConfig, q.Scope)
	}

	criteria := d.criteria
	if thresholdDays >= 0 {
		criteria.ThresholdDays = thresholdDays
	}

	d.logger.Info("Searching for duplicates",
		"scope", q.Scope,
		"batch_id", q.BatchID,
		"owner_id", q.OwnerID,
		"threshold_days", criteria.ThresholdDays)

	candidates, err := d.storage.ListPendingTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load duplicate candidates: %w", err)
	}
	if len(candidates) > d.maxCandidates {
		return nil, common.Retryable(fmt.Errorf("%w: more than %d pending transactions in %s scope",
			ErrTooManyCandidates, d.maxCandidates, q.Scope))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := GroupDuplicates(candidates, criteria)
	d.metrics.ObserveDuplicateGroups(len(groups))
	d.logger.Info("Duplicate search finished", "count", len(candidates), "groups", len(groups))
	return groups, nil
}

// MergeResult describes a committed merge.
type MergeResult struct {
	Kept             *model.PendingTransaction
	CompletedBatches []int64
	Removed          int64
}

// Merge keeps keepID and deletes removeIDs. found is false when keepID
// does not exist; nothing is deleted in that case.
func (d *Detector) Merge(ctx context.Context, keepID int64, removeIDs []int64) (result *MergeResult, found bool, err error) {
	ids := make([]int64, 0, len(removeIDs))
	seen := map[int64]bool{keepID: true}
	for _, id := range removeIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	kept, err := d.storage.GetPendingTransaction(ctx, keepID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return &MergeResult{Kept: kept}, true, nil
	}

	if d.checkpointer != nil {
		if _, err := d.checkpointer.AutoCheckpoint(ctx, "merge-duplicates"); err != nil {
			return nil, true, fmt.Errorf("failed to checkpoint before merge: %w", err)
		}
	}

	result = &MergeResult{Kept: kept}
	affected := map[int64]bool{}
	var batches []int64

	tx, err := d.storage.BeginTx(ctx)
	if err != nil {
		return nil, true, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, id := range ids {
		txn, getErr := tx.GetPendingTransaction(ctx, id)
		if errors.Is(getErr, common.ErrNotFound) {
			continue
		}
		if getErr != nil {
			return nil, true, getErr
		}
		if !affected[txn.BatchID] {
			affected[txn.BatchID] = true
			batches = append(batches, txn.BatchID)
		}
	}

	result.Removed, err = tx.DeletePendingTransactions(ctx, ids)
	if err != nil {
		return nil, true, err
	}
	if err = tx.Commit(); err != nil {
		return nil, true, err
	}

	d.metrics.ObserveMerge(result.Removed)
	d.logger.Info("Merged duplicates", "kept", keepID, "count", result.Removed)

	if d.completer != nil {
		for _, batchID := range batches {
			completed, cErr := d.completer.CompleteIfResolved(ctx, batchID)
			if cErr != nil {
				d.logger.Warn("Completion check failed after merge", "batch_id", batchID, "error", cErr)
				continue
			}
			if completed {
				result.CompletedBatches = append(result.CompletedBatches, batchID)
			}
		}
	}
	return result, true, nil
}
