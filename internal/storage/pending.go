package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/shopspring/decimal"
)

const pendingColumns = `p.id, p.batch_id, p.fitid, p.date, p.description, p.amount, p.type, p.ofx_type,
	p.payee, p.memo, p.check_number, p.predicted_category, p.confidence_score, p.confidence_level,
	p.suggestions, p.user_category, p.review_status, p.reviewed_at, p.notes, p.version, p.created_at`

// fitidChunk keeps IN lists under SQLite's bound parameter limit.
const fitidChunk = 500

// InsertPendingTransaction inserts txn unless its FITID is already stored.
// It reports whether a row was written.
func (r *repo) InsertPendingTransaction(ctx context.Context, txn *model.PendingTransaction) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validatePending(txn); err != nil {
		return false, err
	}

	suggestions, err := encodeSuggestions(txn.Suggestions)
	if err != nil {
		return false, err
	}
	level := txn.ConfidenceLevel
	if level == "" {
		level = model.LevelForConfidence(txn.ConfidenceScore)
	}

	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO pending_transactions (
			batch_id, fitid, date, description, amount, type, ofx_type, payee, memo, check_number,
			predicted_category, confidence_score, confidence_level, suggestions,
			user_category, review_status, reviewed_at, notes, version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(fitid) DO NOTHING`,
		txn.BatchID, txn.FITID, txn.Date, txn.Description, txn.Amount.String(), string(txn.Type),
		txn.OFXType, txn.Payee, txn.Memo, txn.CheckNumber,
		txn.PredictedCategory, txn.ConfidenceScore, string(level), suggestions,
		txn.UserCategory, string(txn.ReviewStatus), nullTime(txn.ReviewedAt), txn.Notes, now,
	)
	if err != nil {
		return false, mapError(fmt.Errorf("failed to insert pending transaction: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get pending transaction id: %w", err)
	}
	txn.ID = id
	txn.Version = 1
	txn.CreatedAt = now
	txn.ConfidenceLevel = level
	return true, nil
}

// ExistingFITIDs returns the subset of fitids already stored.
func (r *repo) ExistingFITIDs(ctx context.Context, fitids []string) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	for start := 0; start < len(fitids); start += fitidChunk {
		chunk := fitids[start:min(start+fitidChunk, len(fitids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		// #nosec G202 - only placeholders are concatenated
		rows, err := r.q.QueryContext(ctx,
			`SELECT fitid FROM pending_transactions WHERE fitid IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, mapError(fmt.Errorf("failed to query fitids: %w", err))
		}
		for rows.Next() {
			var fitid string
			if err := rows.Scan(&fitid); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan fitid: %w", err)
			}
			existing[fitid] = true
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// GetPendingTransaction returns one pending transaction or common.ErrNotFound.
func (r *repo) GetPendingTransaction(ctx context.Context, id int64) (*model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "transaction"); err != nil {
		return nil, err
	}

	row := r.q.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_transactions p WHERE p.id = ?`, id)
	txn, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get pending transaction: %w", err))
	}
	return txn, nil
}

// ListPendingTransactions returns matching transactions by date ascending.
func (r *repo) ListPendingTransactions(ctx context.Context, filter service.PendingFilter) ([]model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.BatchID != 0 {
		where = append(where, "p.batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.OwnerID != 0 {
		where = append(where, "b.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		where = append(where, "p.review_status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.NeedsReview {
		where = append(where, "p.review_status = ? AND (p.confidence_level = ? OR p.confidence_score < ?)")
		args = append(args, string(model.ReviewPending), string(model.ConfidenceLow), model.MediumConfidenceThreshold)
	}

	query := `SELECT ` + pendingColumns + ` FROM pending_transactions p
		JOIN import_batches b ON b.id = p.batch_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.date ASC, p.id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return r.queryPending(ctx, query, args...)
}

// ListLabeledTransactions returns reviewed transactions that carry a final
// category, usable as training examples.
func (r *repo) ListLabeledTransactions(ctx context.Context) ([]model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return r.queryPending(ctx, `SELECT `+pendingColumns+` FROM pending_transactions p
		WHERE p.review_status IN (?, ?)
		AND (p.user_category != '' OR p.predicted_category != '')
		ORDER BY p.date ASC, p.id ASC`,
		string(model.ReviewApproved), string(model.ReviewModified))
}

func (r *repo) queryPending(ctx context.Context, query string, args ...any) ([]model.PendingTransaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list pending transactions: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var txns []model.PendingTransaction
	for rows.Next() {
		txn, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// UpdatePendingTransaction writes the review fields of txn if its version
// still matches, then bumps the version.
func (r *repo) UpdatePendingTransaction(ctx context.Context, txn *model.PendingTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePending(txn); err != nil {
		return err
	}
	if err := validateID(txn.ID, "transaction"); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE pending_transactions SET
			user_category = ?, review_status = ?, reviewed_at = ?, notes = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		txn.UserCategory, string(txn.ReviewStatus), nullTime(txn.ReviewedAt), txn.Notes,
		txn.ID, txn.Version,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update pending transaction: %w", err))
	}
	if err := r.checkVersioned(ctx, res, "pending_transactions", "transaction", txn.ID); err != nil {
		return err
	}
	txn.Version++
	return nil
}

// DeletePendingTransactions removes the given rows and returns how many existed.
func (r *repo) DeletePendingTransactions(ctx context.Context, ids []int64) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var total int64
	for start := 0; start < len(ids); start += fitidChunk {
		chunk := ids[start:min(start+fitidChunk, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		// #nosec G202 - only placeholders are concatenated
		res, err := r.q.ExecContext(ctx, `DELETE FROM pending_transactions WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return total, mapError(fmt.Errorf("failed to delete pending transactions: %w", err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get affected rows: %w", err)
		}
		total += n
	}
	return total, nil
}

// CountUnreviewed counts PENDING transactions in a batch.
func (r *repo) CountUnreviewed(ctx context.Context, batchID int64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_transactions WHERE batch_id = ? AND review_status = ?`,
		batchID, string(model.ReviewPending)).Scan(&count)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to count unreviewed transactions: %w", err))
	}
	return count, nil
}

func scanPending(s scanner) (*model.PendingTransaction, error) {
	var (
		txn         model.PendingTransaction
		amount      string
		typ         string
		level       string
		status      string
		suggestions string
		reviewedAt  sql.NullTime
	)
	err := s.Scan(
		&txn.ID, &txn.BatchID, &txn.FITID, &txn.Date, &txn.Description, &amount, &typ, &txn.OFXType,
		&txn.Payee, &txn.Memo, &txn.CheckNumber, &txn.PredictedCategory, &txn.ConfidenceScore, &level,
		&suggestions, &txn.UserCategory, &status, &reviewedAt, &txn.Notes, &txn.Version, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", common.ErrDatabaseCorrupted, amount)
	}
	if suggestions != "" {
		if err := json.Unmarshal([]byte(suggestions), &txn.Suggestions); err != nil {
			return nil, fmt.Errorf("%w: suggestions: %w", common.ErrDatabaseCorrupted, err)
		}
	}
	txn.Type = model.TransactionType(typ)
	txn.ConfidenceLevel = model.ConfidenceLevel(level)
	txn.ReviewStatus = model.ReviewStatus(status)
	txn.ReviewedAt = timePtr(reviewedAt)
	return &txn, nil
}

func encodeSuggestions(s []model.Suggestion) (string, error) {
	if s == nil {
		s = []model.Suggestion{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode suggestions: %w", err)
	}
	return string(data), nil
}
