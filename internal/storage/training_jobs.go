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
)

const jobColumns = `id, owner_id, status, source, file_path, model_version, metrics,
	error_message, created_at, completed_at`

// CreateTrainingJob inserts job and fills in its ID and creation time.
func (r *repo) CreateTrainingJob(ctx context.Context, job *model.TrainingJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}

	metrics, err := encodeMetrics(job.Metrics)
	if err != nil {
		return err
	}
	if job.OwnerID == 0 {
		job.OwnerID = 1
	}
	now := time.Now().UTC()

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO training_jobs (
			owner_id, status, source, file_path, model_version, metrics, error_message, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.OwnerID, string(job.Status), string(job.Source), job.FilePath, job.ModelVersion,
		metrics, job.ErrorMessage, now, nullTime(job.CompletedAt),
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create training job: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get training job id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	return nil
}

// UpdateTrainingJob writes the outcome fields of job.
func (r *repo) UpdateTrainingJob(ctx context.Context, job *model.TrainingJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}
	if err := validateID(job.ID, "training job"); err != nil {
		return err
	}

	metrics, err := encodeMetrics(job.Metrics)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE training_jobs SET
			status = ?, model_version = ?, metrics = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		string(job.Status), job.ModelVersion, metrics, job.ErrorMessage, nullTime(job.CompletedAt), job.ID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update training job: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("training job %d: %w", job.ID, common.ErrNotFound)
	}
	return nil
}

// GetTrainingJob returns one job or common.ErrNotFound.
func (r *repo) GetTrainingJob(ctx context.Context, id int64) (*model.TrainingJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "training job"); err != nil {
		return nil, err
	}

	row := r.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM training_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training job %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get training job: %w", err))
	}
	return job, nil
}

// ListTrainingJobs returns jobs newest first.
func (r *repo) ListTrainingJobs(ctx context.Context, filter service.TrainingJobFilter) ([]model.TrainingJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.OwnerID != 0 {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	query := `SELECT ` + jobColumns + ` FROM training_jobs`
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
		return nil, mapError(fmt.Errorf("failed to list training jobs: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.TrainingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(s scanner) (*model.TrainingJob, error) {
	var (
		job         model.TrainingJob
		status      string
		source      string
		metrics     sql.NullString
		completedAt sql.NullTime
	)
	err := s.Scan(&job.ID, &job.OwnerID, &status, &source, &job.FilePath, &job.ModelVersion,
		&metrics, &job.ErrorMessage, &job.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	job.Status = model.TrainingStatus(status)
	job.Source = model.TrainingSource(source)
	job.CompletedAt = timePtr(completedAt)
	if metrics.Valid && metrics.String != "" {
		var m model.TrainingMetrics
		if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
			return nil, fmt.Errorf("%w: training metrics: %w", common.ErrDatabaseCorrupted, err)
		}
		job.Metrics = &m
	}
	return &job, nil
}

func encodeMetrics(m *model.TrainingMetrics) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode training metrics: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
