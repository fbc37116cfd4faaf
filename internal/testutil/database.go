// Package testutil provides shared fixtures for the spice-ledger tests:
// temporary databases, OFX statements and labeled training data.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB is a migrated SQLite database in a per-test directory.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	Path    string
}

// SetupTestDB creates and migrates a database that is closed when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spice.db")
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return &TestDB{Storage: store, Path: path, t: t}
}

// WithTransaction executes fn within a unit of work that is always rolled back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// PendingSpec describes one seeded pending transaction.
type PendingSpec struct {
	Date        time.Time
	FITID       string
	Description string
	Amount      string
	Category    string
	Status      model.ReviewStatus
	Confidence  float64
}

// SeedBatch creates a batch in REVIEW with the given transactions.
func (db *TestDB) SeedBatch(owner int64, specs ...PendingSpec) (*model.ImportBatch, []model.PendingTransaction) {
	db.t.Helper()
	ctx := context.Background()

	batch := &model.ImportBatch{
		OwnerID:           owner,
		Filename:          "seed.ofx",
		Status:            model.BatchReview,
		InstitutionName:   "Test Bank",
		TotalTransactions: len(specs),
	}
	if err := db.Storage.CreateBatch(ctx, batch); err != nil {
		db.t.Fatalf("failed to seed batch: %v", err)
	}

	txns := make([]model.PendingTransaction, 0, len(specs))
	for i, spec := range specs {
		amount := decimal.RequireFromString(spec.Amount)
		if spec.Date.IsZero() {
			spec.Date = time.Date(2024, 1, 1+i%28, 0, 0, 0, 0, time.UTC)
		}
		if spec.FITID == "" {
			spec.FITID = fmt.Sprintf("seed-%d-%d", batch.ID, i)
		}
		if spec.Status == "" {
			spec.Status = model.ReviewPending
		}
		txn := model.PendingTransaction{
			BatchID:           batch.ID,
			FITID:             spec.FITID,
			Date:              spec.Date,
			Description:       spec.Description,
			Amount:            amount,
			Type:              model.TypeForAmount(amount),
			PredictedCategory: spec.Category,
			ConfidenceScore:   spec.Confidence,
			ConfidenceLevel:   model.LevelForConfidence(spec.Confidence),
			ReviewStatus:      spec.Status,
		}
		if _, err := db.Storage.InsertPendingTransaction(ctx, &txn); err != nil {
			db.t.Fatalf("failed to seed transaction: %v", err)
		}
		txns = append(txns, txn)
	}
	batch.ProcessedTransactions = len(txns)
	if err := db.Storage.UpdateBatch(ctx, batch); err != nil {
		db.t.Fatalf("failed to update seeded batch: %v", err)
	}
	return batch, txns
}
