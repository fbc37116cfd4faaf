// Package training fits the category classifier from labeled transactions.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/features"
	"github.com/Veraticus/spice-ledger/internal/forest"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// ErrInsufficientData means no trainable rows remained after cleaning.
var ErrInsufficientData = errors.New("insufficient training data")

// MinSamplesPerCategory is the smallest class a stratified split can handle.
const MinSamplesPerCategory = 2

// Config controls a training run.
type Config struct {
	Features     features.Config
	Forest       forest.Config
	TestFraction float64
	CVFolds      int
	TopFeatures  int
}

// DefaultConfig returns the stock training parameters.
func DefaultConfig() Config {
	return Config{
		Features:     features.DefaultConfig(),
		Forest:       forest.DefaultConfig(),
		TestFraction: 0.2,
		CVFolds:      5,
		TopFeatures:  10,
	}
}

// Result is a fitted extractor and forest plus their quality report.
// The three model parts are only meaningful together.
type Result struct {
	Extractor  *features.Extractor
	Forest     *forest.Forest
	Categories []string
	Metrics    model.TrainingMetrics
}

// Trainer fits classifiers.
type Trainer struct {
	logger *slog.Logger
	// Progress, when set, is called as forest trees finish: done of total.
	Progress func(done, total int)
	cfg      Config
}

// NewTrainer creates a trainer.
func NewTrainer(cfg Config, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}
	if cfg.CVFolds < 2 {
		cfg.CVFolds = 5
	}
	if cfg.TopFeatures <= 0 {
		cfg.TopFeatures = 10
	}
	return &Trainer{cfg: cfg, logger: logger}
}

// Prepare drops unlabeled rows and prunes categories with fewer than
// MinSamplesPerCategory rows. Pruned categories are logged and returned.
func Prepare(rows []model.LabeledTransaction, logger *slog.Logger) ([]model.LabeledTransaction, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	labeled := make([]model.LabeledTransaction, 0, len(rows))
	counts := make(map[string]int)
	for _, row := range rows {
		row.Category = strings.TrimSpace(row.Category)
		if row.Category == "" {
			continue
		}
		labeled = append(labeled, row)
		counts[row.Category]++
	}

	var pruned []string
	for category, count := range counts {
		if count < MinSamplesPerCategory {
			pruned = append(pruned, category)
		}
	}
	sort.Strings(pruned)
	for _, category := range pruned {
		logger.Warn("Pruning category with too few examples",
			"category", category,
			"count", counts[category],
			"min_required", MinSamplesPerCategory)
	}

	kept := labeled[:0]
	for _, row := range labeled {
		if counts[row.Category] >= MinSamplesPerCategory {
			kept = append(kept, row)
		}
	}

	if len(kept) == 0 {
		return nil, pruned, fmt.Errorf("%w: %d rows, none in a category with at least %d examples",
			ErrInsufficientData, len(rows), MinSamplesPerCategory)
	}
	return kept, pruned, nil
}

// Input converts labeled rows into extractor columns.
func Input(rows []model.LabeledTransaction) features.Input {
	in := features.Input{
		Descriptions: make([]string, len(rows)),
		Amounts:      make([]float64, len(rows)),
		Types:        make([]model.TransactionType, len(rows)),
		Dates:        make([]time.Time, len(rows)),
	}
	for i, row := range rows {
		in.Descriptions[i] = row.Description
		in.Amounts[i] = row.Amount.InexactFloat64()
		in.Types[i] = row.Type
		if in.Types[i] == "" {
			in.Types[i] = model.TypeForAmount(row.Amount)
		}
		in.Dates[i] = row.Date
	}
	return in
}

// Train fits a classifier on rows and evaluates it on a stratified hold-out
// set and with stratified k-fold cross-validation.
func (t *Trainer) Train(ctx context.Context, rows []model.LabeledTransaction) (*Result, error) {
	kept, pruned, err := Prepare(rows, t.logger)
	if err != nil {
		return nil, err
	}

	categories := uniqueCategories(kept)
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c] = i
	}
	y := make([]int, len(kept))
	for i, row := range kept {
		y[i] = index[row.Category]
	}

	t.logger.Info("Preparing training data",
		"rows", len(kept),
		"categories", len(categories),
		"pruned", len(pruned))

	extractor := features.NewExtractor(t.cfg.Features)
	X, err := extractor.FitTransform(Input(kept))
	if err != nil {
		return nil, fmt.Errorf("failed to extract features: %w", err)
	}

	rng := rand.New(rand.NewPCG(t.cfg.Forest.Seed, 0x5eed))
	trainIdx, testIdx := stratifiedSplit(y, len(categories), t.cfg.TestFraction, rng)

	t.logger.Info("Training random forest",
		"train", len(trainIdx),
		"test", len(testIdx),
		"features", extractor.NumFeatures())

	var progress func()
	if t.Progress != nil {
		done := 0
		total := t.cfg.Forest.NumTrees
		progress = func() {
			done++
			t.Progress(done, total)
		}
	}

	clf, err := forest.Fit(ctx, subset(X, trainIdx), subset(y, trainIdx), len(categories), t.cfg.Forest, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}

	actual := subset(y, testIdx)
	predicted := make([]int, len(testIdx))
	for i, row := range subset(X, testIdx) {
		predicted[i] = clf.Predict(row)
	}
	report := classificationReport(actual, predicted, categories)

	cvScores, err := t.crossValidate(ctx, X, y, len(categories))
	if err != nil {
		return nil, err
	}
	cvMean, cvStd := meanStd(cvScores)

	metrics := model.TrainingMetrics{
		TrainedAt:        time.Now().UTC(),
		Categories:       categories,
		PrunedCategories: pruned,
		CategoryReport:   report,
		TopFeatures:      topFeatures(extractor.FeatureNames(), clf.Importances, t.cfg.TopFeatures),
		Accuracy:         accuracy(actual, predicted),
		F1Score:          weightedF1(report),
		CVMean:           cvMean,
		CVStd:            cvStd,
		TrainSamples:     len(trainIdx),
		TestSamples:      len(testIdx),
		FeatureCount:     extractor.NumFeatures(),
	}

	t.logger.Info("Training complete",
		"accuracy", metrics.Accuracy,
		"f1", metrics.F1Score,
		"cv_mean", metrics.CVMean,
		"cv_std", metrics.CVStd)

	return &Result{
		Extractor:  extractor,
		Forest:     clf,
		Categories: categories,
		Metrics:    metrics,
	}, nil
}

func (t *Trainer) crossValidate(ctx context.Context, X [][]float64, y []int, numClasses int) ([]float64, error) {
	k := min(t.cfg.CVFolds, len(y))
	if k < 2 {
		return nil, nil
	}
	folds := stratifiedFolds(y, numClasses, k)

	scores := make([]float64, 0, k)
	for f, testIdx := range folds {
		if len(testIdx) == 0 {
			continue
		}
		var trainIdx []int
		for g, fold := range folds {
			if g != f {
				trainIdx = append(trainIdx, fold...)
			}
		}
		if len(trainIdx) == 0 {
			continue
		}

		clf, err := forest.Fit(ctx, subset(X, trainIdx), subset(y, trainIdx), numClasses, t.cfg.Forest, nil)
		if err != nil {
			return nil, fmt.Errorf("cross-validation fold %d: %w", f, err)
		}
		predicted := make([]int, len(testIdx))
		for i, j := range testIdx {
			predicted[i] = clf.Predict(X[j])
		}
		scores = append(scores, accuracy(subset(y, testIdx), predicted))
	}
	return scores, nil
}

func uniqueCategories(rows []model.LabeledTransaction) []string {
	seen := make(map[string]bool)
	var categories []string
	for _, row := range rows {
		if !seen[row.Category] {
			seen[row.Category] = true
			categories = append(categories, row.Category)
		}
	}
	sort.Strings(categories)
	return categories
}
