package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Import batches and pending transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS import_batches (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_id INTEGER NOT NULL DEFAULT 1,
					filename TEXT NOT NULL,
					file_path TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					institution_name TEXT NOT NULL DEFAULT '',
					account_id TEXT NOT NULL DEFAULT '',
					period_start DATETIME,
					period_end DATETIME,
					closing_balance TEXT,
					total_transactions INTEGER NOT NULL DEFAULT 0,
					processed_transactions INTEGER NOT NULL DEFAULT 0,
					error_message TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_import_batches_owner ON import_batches(owner_id)`,
				`CREATE INDEX idx_import_batches_status ON import_batches(status)`,

				`CREATE TABLE IF NOT EXISTS pending_transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					batch_id INTEGER NOT NULL REFERENCES import_batches(id) ON DELETE CASCADE,
					fitid TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					type TEXT NOT NULL,
					ofx_type TEXT NOT NULL DEFAULT '',
					payee TEXT NOT NULL DEFAULT '',
					memo TEXT NOT NULL DEFAULT '',
					check_number TEXT NOT NULL DEFAULT '',
					predicted_category TEXT NOT NULL DEFAULT '',
					confidence_score REAL NOT NULL DEFAULT 0,
					confidence_level TEXT NOT NULL DEFAULT 'low',
					suggestions TEXT NOT NULL DEFAULT '[]',
					user_category TEXT NOT NULL DEFAULT '',
					review_status TEXT NOT NULL DEFAULT 'PENDING',
					reviewed_at DATETIME,
					notes TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE UNIQUE INDEX idx_pending_transactions_fitid ON pending_transactions(fitid)`,
				`CREATE INDEX idx_pending_transactions_batch ON pending_transactions(batch_id)`,
				`CREATE INDEX idx_pending_transactions_status ON pending_transactions(review_status)`,
				`CREATE INDEX idx_pending_transactions_date ON pending_transactions(date)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Optimistic locking versions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`ALTER TABLE import_batches ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
				`ALTER TABLE pending_transactions ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
			})
		},
	},
	{
		Version:     3,
		Description: "Training jobs",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS training_jobs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_id INTEGER NOT NULL DEFAULT 1,
					status TEXT NOT NULL,
					source TEXT NOT NULL,
					file_path TEXT NOT NULL DEFAULT '',
					model_version TEXT NOT NULL DEFAULT '',
					metrics TEXT,
					error_message TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_training_jobs_owner ON training_jobs(owner_id)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
