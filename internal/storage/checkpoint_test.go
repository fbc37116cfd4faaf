package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointCreateListDelete(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	batch := createTestBatch(t, store, 1)
	_, err := store.InsertPendingTransaction(ctx, pendingFixture(batch.ID, "CP1", 1, 0.9))
	require.NoError(t, err)

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-merge", "manual snapshot")
	require.NoError(t, err)
	assert.Equal(t, "before-merge", info.ID)
	assert.Equal(t, 1, info.Batches)
	assert.Equal(t, 1, info.PendingTransactions)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)

	_, err = cm.Create(ctx, "before-merge", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	_, err = cm.Create(ctx, "../escape", "")
	assert.ErrorIs(t, err, ErrInvalidCheckpointID)

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, cm.Delete(ctx, "before-merge"))
	assert.ErrorIs(t, cm.Delete(ctx, "before-merge"), ErrCheckpointNotFound)
}

func TestAutoCheckpointPrunes(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	for range maxAutoCheckpoints + 2 {
		info, err := cm.AutoCheckpoint(ctx, "merge")
		require.NoError(t, err)
		assert.True(t, info.IsAuto)
	}

	list, err := cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, maxAutoCheckpoints)
}

func TestCheckpointRestore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "spice.db")
	ctx := context.Background()

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	batch := createTestBatch(t, store, 1)

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	_, err = cm.Create(ctx, "snap", "")
	require.NoError(t, err)

	require.NoError(t, store.DeleteBatch(ctx, batch.ID))
	require.NoError(t, cm.Restore(ctx, "snap"))

	reopened, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.Filename, got.Filename)

	_, err = os.Stat(dbPath + ".restore-backup")
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, cm.Restore(ctx, "missing"), ErrCheckpointNotFound)
	_, err = reopened.GetBatch(ctx, 12345)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCheckpointRequiresFile(t *testing.T) {
	_, err := NewCheckpointManager(nil, ":memory:")
	assert.Error(t, err)
}
