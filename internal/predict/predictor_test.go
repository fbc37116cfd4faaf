package predict

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/artifact"
	"github.com/Veraticus/spice-ledger/internal/features"
	"github.com/Veraticus/spice-ledger/internal/forest"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/testutil"
	"github.com/Veraticus/spice-ledger/internal/training"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainArtifact(t *testing.T, version string) *artifact.Artifact {
	t.Helper()
	cfg := training.DefaultConfig()
	cfg.Forest = forest.Config{NumTrees: 25, MaxDepth: 10, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 11}
	cfg.CVFolds = 2
	result, err := training.NewTrainer(cfg, nil).Train(context.Background(), testutil.SampleLabeledData().Build())
	require.NoError(t, err)
	a, err := artifact.New(version, result)
	require.NoError(t, err)
	return a
}

func TestPredictBatch(t *testing.T) {
	p, err := New(trainArtifact(t, "v1"))
	require.NoError(t, err)

	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	results, err := p.PredictBatch(features.Input{
		Descriptions: []string{"STARBUCKS COFFEE", "PAYROLL ACME CORP"},
		Amounts:      []float64{-4.75, 3200},
		Types:        []model.TransactionType{model.TypeDebit, model.TypeCredit},
		Dates:        []time.Time{date, date},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Coffee", results[0].Category)
	assert.Equal(t, "Salary", results[1].Category)

	for _, res := range results {
		assert.Equal(t, model.LevelForConfidence(res.Confidence), res.ConfidenceLevel)
		require.Len(t, res.Suggestions, MaxSuggestions)
		assert.Equal(t, res.Category, res.Suggestions[0].Category)
		assert.Equal(t, res.Confidence, res.Suggestions[0].Confidence)
		for i := 1; i < len(res.Suggestions); i++ {
			assert.GreaterOrEqual(t, res.Suggestions[i-1].Confidence, res.Suggestions[i].Confidence)
		}
	}
}

func TestPredictBatchLengthMismatch(t *testing.T) {
	p, err := New(trainArtifact(t, "v1"))
	require.NoError(t, err)

	_, err = p.PredictBatch(features.Input{
		Descriptions: []string{"A", "B"},
		Amounts:      []float64{1},
		Types:        []model.TransactionType{model.TypeDebit, model.TypeDebit},
		Dates:        []time.Time{{}, {}},
	})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestScoreBandsAndSuggestions(t *testing.T) {
	p := &Predictor{categories: []string{"A", "B"}}

	res := p.score([]float64{0.2, 0.8})
	assert.Equal(t, "B", res.Category)
	assert.Equal(t, model.ConfidenceHigh, res.ConfidenceLevel)
	assert.Len(t, res.Suggestions, 2)

	res = p.score([]float64{0.6, 0.4})
	assert.Equal(t, model.ConfidenceMedium, res.ConfidenceLevel)

	res = p.score([]float64{0.5, 0.5})
	assert.Equal(t, "A", res.Category)
	assert.Equal(t, model.ConfidenceLow, res.ConfidenceLevel)
}

func TestPredictTransactions(t *testing.T) {
	p, err := New(trainArtifact(t, "v1"))
	require.NoError(t, err)

	txns := []model.ParsedTransaction{{
		Date:        time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("-88.10"),
		Description: "WHOLE FOODS MARKET",
		Type:        model.TypeDebit,
	}}
	results, err := p.PredictTransactions(context.Background(), txns)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Groceries", results[0].Category)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.PredictTransactions(ctx, txns)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInfo(t *testing.T) {
	p, err := New(trainArtifact(t, "v7"))
	require.NoError(t, err)

	info := p.Info()
	assert.True(t, info.Loaded)
	assert.Equal(t, "v7", info.Version)
	assert.Equal(t, []string{"Coffee", "Groceries", "Salary", "Transport"}, info.Categories)
	assert.Equal(t, 25, info.Trees)
	require.NotNil(t, info.Metrics)
	assert.Equal(t, "v7", info.Metrics.ModelVersion)
	assert.Equal(t, info.FeatureCount, info.Metrics.FeatureCount)
}

func TestValidate(t *testing.T) {
	p, err := New(trainArtifact(t, "v1"))
	require.NoError(t, err)

	rows := testutil.NewLabeledData().
		WithCategory("Coffee", 3, -4.5, "STARBUCKS COFFEE").
		WithCategory("Transport", 2, -4.5, "STARBUCKS COFFEE").
		Build()

	report, err := p.Validate(rows)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Total)
	assert.InDelta(t, float64(report.Correct)/5, report.Accuracy, 1e-9)

	total := 0
	for _, band := range report.ByLevel {
		total += band.Count
		assert.LessOrEqual(t, band.Correct, band.Count)
	}
	assert.Equal(t, 5, total)

	mistakes := 0
	for _, c := range report.CommonErrors {
		assert.NotEqual(t, c.Actual, c.Predicted)
		mistakes += c.Count
	}
	assert.Equal(t, report.Total-report.Correct, mistakes)
}

func TestLive(t *testing.T) {
	store := artifact.NewStore(filepath.Join(t.TempDir(), "models"), "", nil)
	live := NewLive(store, nil)

	assert.ErrorIs(t, live.Reload(), ErrModelUnavailable)
	assert.False(t, live.Info().Loaded)
	_, err := live.PredictTransactions(context.Background(), nil)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	require.NoError(t, os.MkdirAll(store.Dir(), 0o750))
	a := trainArtifact(t, "20240101_000000")
	require.NoError(t, artifact.Write(store.VersionPath(a.Version), a))
	_, err = store.Activate(a.Version)
	require.NoError(t, err)

	require.NoError(t, live.Reload())
	assert.Equal(t, a.Version, live.Info().Version)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := live.PredictTransactions(context.Background(), []model.ParsedTransaction{{
				Description: "UBER TRIP HELP",
				Amount:      decimal.RequireFromString("-22"),
				Type:        model.TypeDebit,
			}})
			assert.NoError(t, err)
			assert.Len(t, results, 1)
		}()
	}
	require.NoError(t, live.Reload())
	wg.Wait()
}
