package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/shopspring/decimal"
)

const batchColumns = `id, owner_id, filename, file_path, status, institution_name, account_id,
	period_start, period_end, closing_balance, total_transactions, processed_transactions,
	error_message, version, created_at, updated_at`

// CreateBatch inserts batch and fills in its ID, version and timestamps.
func (r *repo) CreateBatch(ctx context.Context, batch *model.ImportBatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBatch(batch); err != nil {
		return err
	}

	now := time.Now().UTC()
	if batch.OwnerID == 0 {
		batch.OwnerID = 1
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO import_batches (
			owner_id, filename, file_path, status, institution_name, account_id,
			period_start, period_end, closing_balance, total_transactions, processed_transactions,
			error_message, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		batch.OwnerID, batch.Filename, batch.FilePath, string(batch.Status),
		batch.InstitutionName, batch.AccountID,
		nullTime(batch.PeriodStart), nullTime(batch.PeriodEnd), nullDecimal(batch.ClosingBalance),
		batch.TotalTransactions, batch.ProcessedTransactions, batch.ErrorMessage, now, now,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create batch: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get batch id: %w", err)
	}

	batch.ID = id
	batch.Version = 1
	batch.CreatedAt = now
	batch.UpdatedAt = now
	return nil
}

// GetBatch returns one batch or common.ErrNotFound.
func (r *repo) GetBatch(ctx context.Context, id int64) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "batch"); err != nil {
		return nil, err
	}

	row := r.q.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get batch: %w", err))
	}
	return batch, nil
}

// ListBatches returns batches newest first.
func (r *repo) ListBatches(ctx context.Context, filter service.BatchFilter) ([]model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != 0 {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}

	query := `SELECT ` + batchColumns + ` FROM import_batches`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list batches: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var batches []model.ImportBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *batch)
	}
	return batches, rows.Err()
}

// UpdateBatch writes batch if its version still matches the stored one, then
// bumps the version.
func (r *repo) UpdateBatch(ctx context.Context, batch *model.ImportBatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBatch(batch); err != nil {
		return err
	}
	if err := validateID(batch.ID, "batch"); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE import_batches SET
			filename = ?, file_path = ?, status = ?, institution_name = ?, account_id = ?,
			period_start = ?, period_end = ?, closing_balance = ?,
			total_transactions = ?, processed_transactions = ?, error_message = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		batch.Filename, batch.FilePath, string(batch.Status), batch.InstitutionName, batch.AccountID,
		nullTime(batch.PeriodStart), nullTime(batch.PeriodEnd), nullDecimal(batch.ClosingBalance),
		batch.TotalTransactions, batch.ProcessedTransactions, batch.ErrorMessage,
		now, batch.ID, batch.Version,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update batch: %w", err))
	}
	if err := r.checkVersioned(ctx, res, "import_batches", "batch", batch.ID); err != nil {
		return err
	}

	batch.Version++
	batch.UpdatedAt = now
	return nil
}

// DeleteBatch removes a batch and all of its pending transactions.
func (r *repo) DeleteBatch(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "batch"); err != nil {
		return err
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM pending_transactions WHERE batch_id = ?`, id); err != nil {
		return mapError(fmt.Errorf("failed to delete batch transactions: %w", err))
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM import_batches WHERE id = ?`, id)
	if err != nil {
		return mapError(fmt.Errorf("failed to delete batch: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("batch %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// checkVersioned turns a zero-row optimistic update into ErrNotFound or
// ErrVersionConflict.
func (r *repo) checkVersioned(ctx context.Context, res sql.Result, table, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	// #nosec G202 - table is one of a fixed set of identifiers
	err = r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return mapError(fmt.Errorf("failed to check %s: %w", entity, err))
	}
	if exists == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, common.ErrNotFound)
	}
	return fmt.Errorf("%s %d: %w", entity, id, common.ErrVersionConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(s scanner) (*model.ImportBatch, error) {
	var (
		batch          model.ImportBatch
		status         string
		periodStart    sql.NullTime
		periodEnd      sql.NullTime
		closingBalance sql.NullString
	)
	err := s.Scan(
		&batch.ID, &batch.OwnerID, &batch.Filename, &batch.FilePath, &status,
		&batch.InstitutionName, &batch.AccountID, &periodStart, &periodEnd, &closingBalance,
		&batch.TotalTransactions, &batch.ProcessedTransactions, &batch.ErrorMessage,
		&batch.Version, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	batch.Status = model.BatchStatus(status)
	batch.PeriodStart = timePtr(periodStart)
	batch.PeriodEnd = timePtr(periodEnd)
	if closingBalance.Valid {
		d, err := decimal.NewFromString(closingBalance.String)
		if err != nil {
			return nil, fmt.Errorf("%w: closing balance %q", common.ErrDatabaseCorrupted, closingBalance.String)
		}
		batch.ClosingBalance = decimal.NewNullDecimal(d)
	}
	return &batch, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}
