// Package predict scores transactions with a trained category classifier.
package predict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/spice-ledger/internal/artifact"
	"github.com/Veraticus/spice-ledger/internal/features"
	"github.com/Veraticus/spice-ledger/internal/forest"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/training"
)

// MaxSuggestions is the number of ranked alternatives per prediction.
const MaxSuggestions = 3

var (
	// ErrModelUnavailable means no model is loaded; categorization is disabled.
	ErrModelUnavailable = errors.New("no category model available")
	// ErrLengthMismatch is returned for input columns of different lengths.
	ErrLengthMismatch = features.ErrLengthMismatch
)

// Predictor scores transactions with one loaded artifact. It is immutable and
// safe for concurrent use.
type Predictor struct {
	artifact   *artifact.Artifact
	extractor  *features.Extractor
	forest     *forest.Forest
	categories []string
}

// New builds a predictor from a validated artifact.
func New(a *artifact.Artifact) (*Predictor, error) {
	if a == nil {
		return nil, ErrModelUnavailable
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	extractor, err := a.Extractor()
	if err != nil {
		return nil, fmt.Errorf("failed to restore feature extractor: %w", err)
	}
	return &Predictor{
		artifact:   a,
		extractor:  extractor,
		forest:     a.Forest,
		categories: a.Categories,
	}, nil
}

// Load reads an artifact file and builds a predictor from it.
func Load(path string) (*Predictor, error) {
	a, err := artifact.Read(path)
	if err != nil {
		return nil, err
	}
	return New(a)
}

// Version returns the loaded model version.
func (p *Predictor) Version() string { return p.artifact.Version }

// PredictBatch scores every row of in. Columns of different lengths are an
// error, never truncated.
func (p *Predictor) PredictBatch(in features.Input) ([]model.PredictionResult, error) {
	X, err := p.extractor.Transform(in)
	if err != nil {
		return nil, err
	}
	results := make([]model.PredictionResult, len(X))
	for i, row := range X {
		results[i] = p.score(p.forest.PredictProba(row))
	}
	return results, nil
}

func (p *Predictor) score(proba []float64) model.PredictionResult {
	order := make([]int, len(proba))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return proba[order[a]] > proba[order[b]] })

	n := min(MaxSuggestions, len(order))
	suggestions := make([]model.Suggestion, n)
	for i, c := range order[:n] {
		suggestions[i] = model.Suggestion{Category: p.categories[c], Confidence: proba[c]}
	}

	best := order[0]
	return model.PredictionResult{
		Category:        p.categories[best],
		Confidence:      proba[best],
		ConfidenceLevel: model.LevelForConfidence(proba[best]),
		Suggestions:     suggestions,
	}
}

// PredictTransactions scores parsed statement transactions.
func (p *Predictor) PredictTransactions(ctx context.Context, txns []model.ParsedTransaction) ([]model.PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.PredictBatch(parsedInput(txns))
}

func parsedInput(txns []model.ParsedTransaction) features.Input {
	in := features.Input{
		Descriptions: make([]string, len(txns)),
		Amounts:      make([]float64, len(txns)),
		Types:        make([]model.TransactionType, len(txns)),
		Dates:        make([]time.Time, len(txns)),
	}
	for i, txn := range txns {
		in.Descriptions[i] = txn.Description
		in.Amounts[i] = txn.Amount.InexactFloat64()
		in.Types[i] = txn.Type
		in.Dates[i] = txn.Date
	}
	return in
}

// Info describes a loaded model.
type Info struct {
	Metrics      *model.TrainingMetrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Version      string                 `json:"version" yaml:"version"`
	Categories   []string               `json:"categories" yaml:"categories"`
	FeatureCount int                    `json:"feature_count" yaml:"feature_count"`
	Trees        int                    `json:"trees" yaml:"trees"`
	Loaded       bool                   `json:"loaded" yaml:"loaded"`
}

// Info reports the categories, feature count and training metrics.
func (p *Predictor) Info() Info {
	metrics := p.artifact.Metrics
	return Info{
		Loaded:       true,
		Version:      p.artifact.Version,
		Categories:   p.categories,
		FeatureCount: p.extractor.NumFeatures(),
		Trees:        len(p.forest.Trees),
		Metrics:      &metrics,
	}
}

// BandAccuracy is the accuracy of predictions in one confidence band.
type BandAccuracy struct {
	Count    int     `json:"count" yaml:"count"`
	Correct  int     `json:"correct" yaml:"correct"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
}

// Confusion counts one (actual, predicted) mistake.
type Confusion struct {
	Actual    string `json:"actual" yaml:"actual"`
	Predicted string `json:"predicted" yaml:"predicted"`
	Count     int    `json:"count" yaml:"count"`
}

// ValidationReport compares predictions to known labels.
type ValidationReport struct {
	ByLevel      map[model.ConfidenceLevel]BandAccuracy `json:"by_confidence_level" yaml:"by_confidence_level"`
	CommonErrors []Confusion                            `json:"common_errors" yaml:"common_errors"`
	Total        int                                    `json:"total_samples" yaml:"total_samples"`
	Correct      int                                    `json:"correct_predictions" yaml:"correct_predictions"`
	Accuracy     float64                                `json:"accuracy" yaml:"accuracy"`
}

// Validate scores labeled rows and reports accuracy overall, per confidence
// band, and the ten most frequent confusions.
func (p *Predictor) Validate(rows []model.LabeledTransaction) (*ValidationReport, error) {
	results, err := p.PredictBatch(training.Input(rows))
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		ByLevel: make(map[model.ConfidenceLevel]BandAccuracy),
		Total:   len(rows),
	}
	confusions := make(map[[2]string]int)
	for i, res := range results {
		band := report.ByLevel[res.ConfidenceLevel]
		band.Count++
		if res.Category == rows[i].Category {
			band.Correct++
			report.Correct++
		} else {
			confusions[[2]string{rows[i].Category, res.Category}]++
		}
		report.ByLevel[res.ConfidenceLevel] = band
	}
	for level, band := range report.ByLevel {
		band.Accuracy = float64(band.Correct) / float64(band.Count)
		report.ByLevel[level] = band
	}
	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total)
	}

	for pair, count := range confusions {
		report.CommonErrors = append(report.CommonErrors, Confusion{Actual: pair[0], Predicted: pair[1], Count: count})
	}
	sort.Slice(report.CommonErrors, func(i, j int) bool {
		a, b := report.CommonErrors[i], report.CommonErrors[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Actual != b.Actual {
			return a.Actual < b.Actual
		}
		return a.Predicted < b.Predicted
	})
	if len(report.CommonErrors) > 10 {
		report.CommonErrors = report.CommonErrors[:10]
	}
	return report, nil
}
