package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/predict"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// ErrBudgetExceeded is returned when parsing and scoring outlast the
// configured time budget. It is retryable and wraps context.DeadlineExceeded.
var ErrBudgetExceeded = errors.New("import time budget exceeded")

// ImportRequest is one statement upload.
type ImportRequest struct {
	Reader   io.Reader
	Filename string
	FilePath string
	Owner    int64
}

// Analysis is the side-effect-free half of an import.
type Analysis struct {
	Statement   *model.Statement
	Predictions []model.PredictionResult
	Summary     model.ImportSummary
	// Categorized is false when no model was available.
	Categorized bool
}

// ImportResult is returned by a committed import.
type ImportResult struct {
	Batch             *model.ImportBatch
	Pending           []model.PendingTransaction
	DuplicatesSkipped []string
	Summary           model.ImportSummary
	Categorized       bool
}

// ImportStatement parses, scores and persists one statement file.
func (e *Engine) ImportStatement(ctx context.Context, r io.Reader, filename string, owner int64) (*ImportResult, error) {
	return e.Import(ctx, ImportRequest{Reader: r, Filename: filename, Owner: owner})
}

// Analyze parses and scores a statement within the time budget without
// touching storage.
func (e *Engine) Analyze(ctx context.Context, r io.Reader) (*Analysis, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, e.cfg.TimeBudget)
	defer cancel()

	stmt, err := e.parser.ParseStatement(budgetCtx, r)
	if err != nil {
		return nil, e.budgetError(ctx, budgetCtx, err)
	}

	preds, categorized, err := e.score(budgetCtx, stmt.Transactions)
	if err != nil {
		return nil, e.budgetError(ctx, budgetCtx, err)
	}

	return &Analysis{
		Statement:   stmt,
		Predictions: preds,
		Summary:     model.Summarize(stmt),
		Categorized: categorized,
	}, nil
}

// budgetError reports a timeout caused by the budget rather than the caller.
func (e *Engine) budgetError(parent, budgetCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(budgetCtx.Err(), context.DeadlineExceeded) {
		return common.Retryable(fmt.Errorf("%w (%s): %w", ErrBudgetExceeded, e.cfg.TimeBudget, context.DeadlineExceeded))
	}
	return err
}

// score runs the categorizer. A missing model yields uncategorized placeholders.
func (e *Engine) score(ctx context.Context, txns []model.ParsedTransaction) ([]model.PredictionResult, bool, error) {
	placeholders := func() []model.PredictionResult {
		preds := make([]model.PredictionResult, len(txns))
		for i := range preds {
			preds[i] = model.Uncategorized()
		}
		return preds
	}

	if e.categorizer == nil || len(txns) == 0 {
		return placeholders(), e.categorizer != nil, nil
	}

	preds, err := e.categorizer.PredictTransactions(ctx, txns)
	if errors.Is(err, predict.ErrModelUnavailable) {
		e.logger.Warn("No model loaded, importing transactions uncategorized", "count", len(txns))
		return placeholders(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to categorize transactions: %w", err)
	}
	if len(preds) != len(txns) {
		return nil, false, fmt.Errorf("categorizer returned %d predictions for %d transactions", len(preds), len(txns))
	}
	return preds, true, nil
}

// Import runs the full pipeline. Parsing and scoring happen outside the
// unit of work; only persistence is transactional.
func (e *Engine) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	start := e.now()
	req.Owner = e.owner(req.Owner)
	if req.Reader == nil {
		return nil, fmt.Errorf("%w: statement reader is required", common.ErrInvalidConfig)
	}

	analysis, err := e.Analyze(ctx, req.Reader)
	if err != nil {
		e.metrics.ObserveImport(0, 0, e.now().Sub(start), err)
		return nil, err
	}

	var (
		result       *ImportResult
		batchCreated bool
	)
	err = e.inTx(ctx, func(tx service.Transaction) error {
		var txErr error
		result, txErr = e.persist(ctx, tx, req, analysis, &batchCreated)
		return txErr
	})
	if err != nil {
		e.logger.Error("Import failed", "filename", req.Filename, "error", err)
		if batchCreated {
			e.recordFailure(ctx, req, analysis.Statement, err)
		}
		e.metrics.ObserveImport(0, 0, e.now().Sub(start), err)
		return nil, fmt.Errorf("failed to import %s: %w", req.Filename, err)
	}

	e.metrics.ObserveImport(len(result.Pending), len(result.DuplicatesSkipped), e.now().Sub(start), nil)
	e.metrics.ObservePredictions(analysis.Predictions)
	e.metrics.ObserveBatchTransition(result.Batch.Status)

	e.logger.Info("Imported statement",
		"batch_id", result.Batch.ID,
		"filename", req.Filename,
		"count", len(result.Pending),
		"skipped", len(result.DuplicatesSkipped),
		"status", result.Batch.Status)
	return result, nil
}

func newBatch(req ImportRequest, stmt *model.Statement, status model.BatchStatus) *model.ImportBatch {
	return &model.ImportBatch{
		OwnerID:           req.Owner,
		Filename:          req.Filename,
		FilePath:          req.FilePath,
		Status:            status,
		InstitutionName:   stmt.InstitutionName,
		AccountID:         stmt.AccountID,
		PeriodStart:       stmt.PeriodStart,
		PeriodEnd:         stmt.PeriodEnd,
		ClosingBalance:    stmt.Balance,
		TotalTransactions: len(stmt.Transactions),
	}
}

func (e *Engine) persist(ctx context.Context, tx service.Transaction, req ImportRequest, a *Analysis, created *bool) (*ImportResult, error) {
	stmt := a.Statement
	batch := newBatch(req, stmt, model.BatchProcessing)
	if err := tx.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	*created = true

	fitids := make([]string, len(stmt.Transactions))
	for i, txn := range stmt.Transactions {
		fitids[i] = txn.FITID
	}
	existing, err := tx.ExistingFITIDs(ctx, fitids)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Batch: batch, Summary: a.Summary, Categorized: a.Categorized}
	for i, parsed := range stmt.Transactions {
		if existing[parsed.FITID] {
			result.DuplicatesSkipped = append(result.DuplicatesSkipped, parsed.FITID)
			continue
		}
		pending := model.NewPendingTransaction(batch.ID, parsed, a.Predictions[i])
		inserted, err := tx.InsertPendingTransaction(ctx, &pending)
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s: %w", parsed.FITID, err)
		}
		if !inserted {
			// Repeated within the same file.
			result.DuplicatesSkipped = append(result.DuplicatesSkipped, parsed.FITID)
			continue
		}
		existing[parsed.FITID] = true
		result.Pending = append(result.Pending, pending)
	}

	batch.ProcessedTransactions = len(result.Pending)
	batch.Status = model.BatchReview
	if err := tx.UpdateBatch(ctx, batch); err != nil {
		return nil, err
	}

	if len(result.Pending) == 0 {
		if _, err := completeIfResolved(ctx, tx, batch); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// recordFailure stores a FAILED batch in its own unit of work so the failure
// stays visible after the import rollback.
func (e *Engine) recordFailure(ctx context.Context, req ImportRequest, stmt *model.Statement, cause error) {
	if ctx.Err() != nil {
		return
	}
	batch := newBatch(req, stmt, model.BatchFailed)
	batch.ErrorMessage = cause.Error()

	err := e.inTx(ctx, func(tx service.Transaction) error {
		return tx.CreateBatch(ctx, batch)
	})
	if err != nil {
		e.logger.Error("Failed to record failed batch", "filename", req.Filename, "error", err)
		return
	}
	e.metrics.ObserveBatchTransition(model.BatchFailed)
}
