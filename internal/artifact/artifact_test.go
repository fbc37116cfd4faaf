package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/forest"
	"github.com/Veraticus/spice-ledger/internal/testutil"
	"github.com/Veraticus/spice-ledger/internal/training"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainResult(t *testing.T) *training.Result {
	t.Helper()
	cfg := training.DefaultConfig()
	cfg.Forest = forest.Config{NumTrees: 5, MaxDepth: 6, Seed: 3}
	cfg.CVFolds = 2
	result, err := training.NewTrainer(cfg, nil).Train(context.Background(), testutil.SampleLabeledData().Build())
	require.NoError(t, err)
	return result
}

func fixedClock(s *Store, ts string) {
	s.now = func() time.Time {
		t, _ := time.Parse(VersionLayout, ts)
		return t
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "models"), "", nil)
	fixedClock(store, "20240301_101500")
	result := trainResult(t)

	saved, path, err := store.Save(result)
	require.NoError(t, err)
	assert.Equal(t, "20240301_101500", saved.Version)
	assert.Equal(t, "20240301_101500", saved.Metrics.ModelVersion)
	assert.FileExists(t, path)

	loaded, err := store.Load(saved.Version)
	require.NoError(t, err)
	assert.Equal(t, result.Categories, loaded.Categories)
	assert.Equal(t, saved.Features.Vocabulary, loaded.Features.Vocabulary)
	assert.Len(t, loaded.Forest.Trees, 5)

	extractor, err := loaded.Extractor()
	require.NoError(t, err)
	assert.Equal(t, result.Extractor.FeatureNames(), extractor.FeatureNames())
}

func TestNextVersionAvoidsCollision(t *testing.T) {
	store := NewStore(t.TempDir(), "", nil)
	fixedClock(store, "20240301_101500")
	result := trainResult(t)

	first, _, err := store.Save(result)
	require.NoError(t, err)
	second, _, err := store.Save(result)
	require.NoError(t, err)

	assert.Equal(t, "20240301_101500", first.Version)
	assert.Equal(t, "20240301_101500_2", second.Version)
}

func TestActivate(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, "", nil)
	result := trainResult(t)

	_, err := store.LoadLive()
	assert.ErrorIs(t, err, ErrNoLiveModel)

	fixedClock(store, "20240301_101500")
	first, _, err := store.Save(result)
	require.NoError(t, err)

	backup, err := store.Activate(first.Version)
	require.NoError(t, err)
	assert.Empty(t, backup)

	live, err := store.LoadLive()
	require.NoError(t, err)
	assert.Equal(t, first.Version, live.Version)

	fixedClock(store, "20240402_080000")
	second, _, err := store.Save(result)
	require.NoError(t, err)

	backup, err = store.Activate(second.Version)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "category_classifier_backup_20240402_080000.json"), backup)

	previous, err := Read(backup)
	require.NoError(t, err)
	assert.Equal(t, first.Version, previous.Version)

	live, err = store.LoadLive()
	require.NoError(t, err)
	assert.Equal(t, second.Version, live.Version)

	versions, err := store.Versions()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, second.Version, versions[0].Version)
	assert.True(t, versions[0].Live)
	assert.False(t, versions[1].Live)
	assert.Equal(t, 2024, versions[1].CreatedAt.Year())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestActivateKeepsEveryBackup(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, "", nil)
	fixedClock(store, "20240301_101500")
	result := trainResult(t)

	var versions []string
	for range 3 {
		saved, _, err := store.Save(result)
		require.NoError(t, err)
		versions = append(versions, saved.Version)
	}

	_, err := store.Activate(versions[0])
	require.NoError(t, err)
	firstBackup, err := store.Activate(versions[1])
	require.NoError(t, err)
	secondBackup, err := store.Activate(versions[2])
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "category_classifier_backup_20240301_101500.json"), firstBackup)
	assert.Equal(t, filepath.Join(dir, "category_classifier_backup_20240301_101500_2.json"), secondBackup)

	previous, err := Read(firstBackup)
	require.NoError(t, err)
	assert.Equal(t, versions[0], previous.Version)

	previous, err = Read(secondBackup)
	require.NoError(t, err)
	assert.Equal(t, versions[1], previous.Version)
}

func TestActivateUnknownVersion(t *testing.T) {
	store := NewStore(t.TempDir(), "", nil)
	_, err := store.Activate("19990101_000000")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadRejectsMismatchedArtifact(t *testing.T) {
	dir := t.TempDir()
	a, err := New("v1", trainResult(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{"schema", func(a *Artifact) { a.Schema = 99 }},
		{"categories", func(a *Artifact) { a.Categories = a.Categories[:1] }},
		{"vocabulary", func(a *Artifact) { a.Features.Vocabulary = append(a.Features.Vocabulary, "zzz") }},
		{"forest", func(a *Artifact) { a.Forest = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(a)
			require.NoError(t, err)
			var copyA Artifact
			require.NoError(t, json.Unmarshal(data, &copyA))
			tt.mutate(&copyA)

			data, err = json.Marshal(&copyA)
			require.NoError(t, err)
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, data, 0o600))

			_, err = Read(path)
			assert.ErrorIs(t, err, ErrIncompatible)
		})
	}

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o600))
	_, err = Read(garbage)
	assert.ErrorIs(t, err, ErrIncompatible)
}
