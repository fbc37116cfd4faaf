package dedup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
	"github.com/Veraticus/spice-ledger/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("UBER TRIP", "UBER TRIP"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("  uber trip ", "UBER TRIP"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("a", "b"), 1e-9)
	assert.InDelta(t, 0.9, Similarity("UBER TRIP1", "UBER TRIP2"), 1e-9)
	assert.InDelta(t, Similarity("abcd", "abce"), Similarity("abce", "abcd"), 1e-12)
}

func pending(id int64, day int, amount, description string) model.PendingTransaction {
	return model.PendingTransaction{
		ID:          id,
		Date:        time.Date(2024, 3, day, 10, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Description: description,
	}
}

func groupIDs(groups []Group) [][]int64 {
	if len(groups) == 0 {
		return nil
	}
	out := make([][]int64, len(groups))
	for i, g := range groups {
		for _, txn := range g.Transactions {
			out[i] = append(out[i], txn.ID)
		}
	}
	return out
}

func TestGroupDuplicates(t *testing.T) {
	criteria := Criteria{ThresholdDays: 3, Similarity: 0.8}

	tests := []struct {
		name string
		txns []model.PendingTransaction
		want [][]int64
	}{
		{
			name: "same transaction imported twice",
			txns: []model.PendingTransaction{
				pending(1, 1, "-42.00", "NETFLIX.COM"),
				pending(2, 2, "-42.00", "netflix.com"),
				pending(3, 1, "-10.00", "SPOTIFY"),
			},
			want: [][]int64{{1, 2}},
		},
		{
			name: "date outside window",
			txns: []model.PendingTransaction{
				pending(1, 1, "-42.00", "NETFLIX.COM"),
				pending(2, 5, "-42.00", "NETFLIX.COM"),
			},
			want: nil,
		},
		{
			name: "amount differs by a cent",
			txns: []model.PendingTransaction{
				pending(1, 1, "-42.00", "NETFLIX.COM"),
				pending(2, 1, "-42.01", "NETFLIX.COM"),
			},
			want: nil,
		},
		{
			name: "sub-cent difference across buckets",
			txns: []model.PendingTransaction{
				pending(1, 1, "-42.004", "NETFLIX.COM"),
				pending(2, 1, "-41.998", "NETFLIX.COM"),
			},
			want: [][]int64{{1, 2}},
		},
		{
			name: "empty descriptions never match",
			txns: []model.PendingTransaction{
				pending(1, 1, "-5", ""),
				pending(2, 1, "-5", ""),
			},
			want: nil,
		},
		{
			name: "transitive chain lands in one group",
			txns: []model.PendingTransaction{
				pending(1, 1, "-9.99", "ABCDEFGHIJ"),
				pending(2, 1, "-9.99", "ABCDEFGHXY"),
				pending(3, 1, "-9.99", "ABCDEFUVXY"),
			},
			want: [][]int64{{1, 2, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, groupIDs(GroupDuplicates(tt.txns, criteria)))
		})
	}
}

func TestGroupDuplicatesIsSymmetric(t *testing.T) {
	txns := []model.PendingTransaction{
		pending(1, 1, "-9.99", "ABCDEFGHIJ"),
		pending(2, 1, "-9.99", "ABCDEFGHXY"),
		pending(3, 1, "-9.99", "ABCDEFUVXY"),
		pending(4, 2, "-20", "COFFEE"),
		pending(5, 3, "-20", "COFFEE"),
	}
	reversed := make([]model.PendingTransaction, len(txns))
	for i, txn := range txns {
		reversed[len(txns)-1-i] = txn
	}

	criteria := Criteria{ThresholdDays: 3, Similarity: 0.8}
	assert.Equal(t, groupIDs(GroupDuplicates(txns, criteria)), groupIDs(GroupDuplicates(reversed, criteria)))
}

type completerFunc func(ctx context.Context, batchID int64) (bool, error)

func (f completerFunc) CompleteIfResolved(ctx context.Context, batchID int64) (bool, error) {
	return f(ctx, batchID)
}

type recordingCheckpointer struct{ ops []string }

func (r *recordingCheckpointer) AutoCheckpoint(_ context.Context, op string) (*storage.CheckpointInfo, error) {
	r.ops = append(r.ops, op)
	return &storage.CheckpointInfo{}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetectorFindDuplicatesScopes(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first, _ := db.SeedBatch(1,
		testutil.PendingSpec{Date: day, Description: "NETFLIX.COM", Amount: "-42"},
	)
	_, _ = db.SeedBatch(1,
		testutil.PendingSpec{Date: day.AddDate(0, 0, 1), Description: "NETFLIX.COM", Amount: "-42"},
	)
	_, _ = db.SeedBatch(2,
		testutil.PendingSpec{Date: day, Description: "NETFLIX.COM", Amount: "-42"},
		testutil.PendingSpec{Date: day, Description: "NETFLIX.COM", Amount: "-42", Status: model.ReviewApproved},
	)

	d := NewDetector(db.Storage, Criteria{ThresholdDays: 3, Similarity: 0.8}, 100, WithLogger(quietLogger()))

	groups, err := d.FindDuplicates(ctx, Query{Scope: ScopeGlobal}, -1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Transactions, 3)

	groups, err = d.FindDuplicates(ctx, Query{Scope: ScopeOwner, OwnerID: 1}, -1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Transactions, 2)

	groups, err = d.FindDuplicates(ctx, Query{Scope: ScopeBatch, BatchID: first.ID}, -1)
	require.NoError(t, err)
	assert.Empty(t, groups)

	groups, err = d.FindDuplicates(ctx, Query{Scope: ScopeOwner, OwnerID: 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, groups)

	_, err = d.FindDuplicates(ctx, Query{Scope: ScopeBatch}, -1)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
	_, err = d.FindDuplicates(ctx, Query{Scope: "planet"}, -1)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestDetectorMaxCandidates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, _ = db.SeedBatch(1,
		testutil.PendingSpec{Description: "A", Amount: "-1"},
		testutil.PendingSpec{Description: "B", Amount: "-2"},
		testutil.PendingSpec{Description: "C", Amount: "-3"},
	)

	d := NewDetector(db.Storage, Criteria{}, 2, WithLogger(quietLogger()))
	_, err := d.FindDuplicates(context.Background(), Query{}, -1)
	assert.ErrorIs(t, err, ErrTooManyCandidates)
	assert.True(t, common.IsRetryable(err))
}

func TestDetectorMerge(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	batch, txns := db.SeedBatch(1,
		testutil.PendingSpec{Date: day, Description: "NETFLIX.COM", Amount: "-42", Status: model.ReviewApproved, Category: "Streaming"},
		testutil.PendingSpec{Date: day, Description: "NETFLIX.COM", Amount: "-42"},
	)

	var checked []int64
	completer := completerFunc(func(_ context.Context, batchID int64) (bool, error) {
		checked = append(checked, batchID)
		return true, nil
	})
	checkpoints := &recordingCheckpointer{}
	d := NewDetector(db.Storage, Criteria{}, 0,
		WithLogger(quietLogger()), WithCompleter(completer), WithCheckpointer(checkpoints))

	result, found, err := d.Merge(ctx, txns[0].ID, []int64{txns[1].ID, txns[0].ID, 9999})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), result.Removed)
	assert.Equal(t, txns[0].ID, result.Kept.ID)
	assert.Equal(t, []int64{batch.ID}, checked)
	assert.Equal(t, []int64{batch.ID}, result.CompletedBatches)
	assert.Equal(t, []string{"merge-duplicates"}, checkpoints.ops)

	left, err := db.Storage.ListPendingTransactions(ctx, service.PendingFilter{BatchID: batch.ID})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, txns[0].ID, left[0].ID)
}

func TestDetectorMergeUnknownKeep(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	_, txns := db.SeedBatch(1, testutil.PendingSpec{Description: "A", Amount: "-1"})

	d := NewDetector(db.Storage, Criteria{}, 0, WithLogger(quietLogger()),
		WithCompleter(completerFunc(func(context.Context, int64) (bool, error) {
			return false, errors.New("should not be called")
		})))

	result, found, err := d.Merge(ctx, 9999, []int64{txns[0].ID})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, result)

	_, err = db.Storage.GetPendingTransaction(ctx, txns[0].ID)
	assert.NoError(t, err)
}
