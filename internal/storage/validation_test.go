package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		batch   *model.ImportBatch
		wantErr error
		name    string
	}{
		{name: "nil", batch: nil, wantErr: ErrNilParameter},
		{name: "no filename", batch: &model.ImportBatch{Status: model.BatchPending}, wantErr: ErrInvalidBatch},
		{name: "bad status", batch: &model.ImportBatch{Filename: "a.ofx", Status: "NOPE"}, wantErr: ErrInvalidStatus},
		{name: "negative counts", batch: &model.ImportBatch{Filename: "a.ofx", Status: model.BatchReview, TotalTransactions: -1}, wantErr: ErrInvalidBatch},
		{name: "valid", batch: &model.ImportBatch{Filename: "a.ofx", Status: model.BatchReview}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBatch(tt.batch)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidatePending(t *testing.T) {
	valid := func() *model.PendingTransaction {
		return &model.PendingTransaction{
			BatchID:      1,
			FITID:        "F1",
			Date:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Amount:       decimal.NewFromInt(-5),
			Type:         model.TypeDebit,
			ReviewStatus: model.ReviewPending,
		}
	}

	tests := []struct {
		mutate  func(*model.PendingTransaction)
		wantErr error
		name    string
	}{
		{name: "valid", mutate: func(*model.PendingTransaction) {}},
		{name: "no batch", mutate: func(p *model.PendingTransaction) { p.BatchID = 0 }, wantErr: ErrInvalidPending},
		{name: "no fitid", mutate: func(p *model.PendingTransaction) { p.FITID = " " }, wantErr: ErrInvalidPending},
		{name: "no date", mutate: func(p *model.PendingTransaction) { p.Date = time.Time{} }, wantErr: ErrInvalidPending},
		{name: "bad type", mutate: func(p *model.PendingTransaction) { p.Type = "other" }, wantErr: ErrInvalidPending},
		{name: "bad status", mutate: func(p *model.PendingTransaction) { p.ReviewStatus = "DONE" }, wantErr: ErrInvalidStatus},
		{name: "confidence", mutate: func(p *model.PendingTransaction) { p.ConfidenceScore = 1.5 }, wantErr: ErrInvalidPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := validatePending(p)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.ErrorIs(t, validatePending(nil), ErrNilParameter)
}

func TestValidateJob(t *testing.T) {
	assert.NoError(t, validateJob(&model.TrainingJob{Status: model.TrainingRunning, Source: model.SourceManualCSV}))
	assert.ErrorIs(t, validateJob(&model.TrainingJob{Status: "X", Source: model.SourceManualCSV}), ErrInvalidStatus)
	assert.ErrorIs(t, validateJob(&model.TrainingJob{Status: model.TrainingRunning, Source: "X"}), ErrInvalidJob)
	assert.ErrorIs(t, validateJob(nil), ErrNilParameter)
}

func TestValidateHelpers(t *testing.T) {
	//nolint:staticcheck // nil context is the point of the test
	assert.ErrorIs(t, validateContext(nil), ErrNilContext)
	assert.NoError(t, validateContext(context.Background()))
	assert.ErrorIs(t, validateString("  ", "name"), ErrEmptyString)
	assert.ErrorIs(t, validateID(0, "batch"), ErrInvalidIdentity)
	assert.NoError(t, validateID(3, "batch"))
}
