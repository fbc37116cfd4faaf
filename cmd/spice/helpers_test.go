package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/config"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "41"}, "transaction")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 41}, ids)

	for _, bad := range []string{"0", "-2", "abc", ""} {
		_, err := parseID(bad, "batch")
		assert.Error(t, err, bad)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		want string
		size int64
	}{
		{"512 B", 512},
		{"1.0 KB", 1024},
		{"1.5 MB", 3 * 512 * 1024},
		{"2.0 GB", 2 << 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFileSize(tt.size))
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatRelativeTime(now.Add(-10*time.Second)))
	assert.Equal(t, "5 minutes ago", formatRelativeTime(now.Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "1 hour ago", formatRelativeTime(now.Add(-time.Hour-time.Minute)))
	assert.Equal(t, "yesterday", formatRelativeTime(now.Add(-25*time.Hour)))

	old := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, old.Format("2006-01-02 15:04"), formatRelativeTime(old))
}

func TestTrainingConfigFromSettings(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("training.trees", 25)
	v.Set("training.seed", 7)
	v.Set("features.max_vocabulary", 50)
	cfg, err := config.Load(v)
	require.NoError(t, err)

	tc := trainingConfig(cfg)
	assert.Equal(t, 25, tc.Forest.NumTrees)
	assert.Equal(t, uint64(7), tc.Forest.Seed)
	assert.Equal(t, 50, tc.Features.MaxVocabulary)
	assert.Equal(t, cfg.Training.CVFolds, tc.CVFolds)
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, checkFormat("table"))
	assert.NoError(t, checkFormat("yaml"))
	assert.Error(t, checkFormat("json"))
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "Chase", orDash("Chase"))
}
