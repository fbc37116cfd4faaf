package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_DATA_HOME", "")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "/home/tester/.local/share/spice/spice.db", cfg.Database.Path)
	assert.Equal(t, "/home/tester/.local/share/spice/models", cfg.Storage.ModelsDir)
	assert.Equal(t, "category_classifier.json", cfg.Model.LiveName)
	assert.Equal(t, 100, cfg.Features.MaxVocabulary)
	assert.Equal(t, 2, cfg.Features.MinDocumentFrequency)
	assert.InDelta(t, 0.2, cfg.Training.TestFraction, 1e-9)
	assert.Equal(t, 200, cfg.Training.Trees)
	assert.Equal(t, 5, cfg.Training.CVFolds)
	assert.Equal(t, 2*time.Minute, cfg.Import.TimeBudget)
	assert.Equal(t, 3, cfg.Dedup.ThresholdDays)
	assert.Equal(t, ScopeGlobal, cfg.Dedup.Scope)
	assert.Equal(t, 100, cfg.Retrain.MinRequired)
	assert.Equal(t, "@weekly", cfg.Retrain.Schedule)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPICE_DEDUP_SCOPE", "batch")
	t.Setenv("SPICE_TRAINING_TREES", "25")
	t.Setenv("SPICE_IMPORT_TIME_BUDGET", "30s")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, ScopeBatch, cfg.Dedup.Scope)
	assert.Equal(t, 25, cfg.Training.Trees)
	assert.Equal(t, 30*time.Second, cfg.Import.TimeBudget)
}

func TestValidateRejectsBadValues(t *testing.T) {
	v := newViper()
	v.Set("dedup.scope", "planet")
	v.Set("training.test_fraction", 1.5)

	_, err := Load(v)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "dedup.scope")
	assert.Contains(t, err.Error(), "training.test_fraction")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SPICE_TEST_DOTENV_VALUE=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SPICE_TEST_DOTENV_VALUE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("SPICE_TEST_DOTENV_VALUE"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("SPICE_DIR", "/data")

	assert.Equal(t, "/home/tester/models", ExpandPath("~/models"))
	assert.Equal(t, "/data/db", ExpandPath("$SPICE_DIR/db"))
	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/home/tester", ExpandPath("~"))
	assert.Equal(t, "~user/models", ExpandPath("~user/models"))
}

func TestDataDirHonorsXDG(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_DATA_HOME", "/srv/data")

	cfg, err := Load(newViper())
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/spice/spice.db", cfg.Database.Path)
	assert.Equal(t, "/srv/data/spice/uploads", cfg.Storage.UploadsDir)
}
