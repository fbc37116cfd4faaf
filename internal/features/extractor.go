// Package features turns transactions into numeric feature vectors.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

var (
	// ErrNotFitted is returned by Transform before FitTransform has run.
	ErrNotFitted = errors.New("feature extractor is not fitted")
	// ErrLengthMismatch is returned when the input columns differ in length.
	ErrLengthMismatch = errors.New("input columns have different lengths")
)

// Names of the numeric features appended after the text terms.
const (
	FeatureAmountLog  = "amount_log"
	FeatureIsCredit   = "is_credit"
	FeatureDayOfMonth = "day_of_month"
)

// NumericFeatures lists the numeric columns in vector order.
var NumericFeatures = []string{FeatureAmountLog, FeatureIsCredit, FeatureDayOfMonth}

// Config bounds the fitted vocabulary.
type Config struct {
	MaxVocabulary        int
	MinDocumentFrequency int
}

// DefaultConfig returns the stock vocabulary limits.
func DefaultConfig() Config {
	return Config{MaxVocabulary: 100, MinDocumentFrequency: 2}
}

// Input is the column-oriented input of the extractor.
type Input struct {
	Descriptions []string
	Amounts      []float64
	Types        []model.TransactionType
	Dates        []time.Time
}

// Len returns the row count, or ErrLengthMismatch.
func (in Input) Len() (int, error) {
	n := len(in.Descriptions)
	if len(in.Amounts) != n || len(in.Types) != n || len(in.Dates) != n {
		return 0, fmt.Errorf("%w: descriptions=%d amounts=%d types=%d dates=%d",
			ErrLengthMismatch, n, len(in.Amounts), len(in.Types), len(in.Dates))
	}
	return n, nil
}

// Extractor is a two phase feature extractor: fit once, then reuse.
type Extractor struct {
	index      map[string]int
	vocabulary []string
	idf        []float64
	cfg        Config
	fitted     bool
}

// NewExtractor creates an unfitted extractor.
func NewExtractor(cfg Config) *Extractor {
	if cfg.MaxVocabulary <= 0 {
		cfg.MaxVocabulary = DefaultConfig().MaxVocabulary
	}
	if cfg.MinDocumentFrequency <= 0 {
		cfg.MinDocumentFrequency = DefaultConfig().MinDocumentFrequency
	}
	return &Extractor{cfg: cfg}
}

// Fitted reports whether the vocabulary has been learned.
func (e *Extractor) Fitted() bool {
	return e.fitted
}

// NumFeatures is the width of every produced vector.
func (e *Extractor) NumFeatures() int {
	return len(e.vocabulary) + len(NumericFeatures)
}

// FeatureNames returns the term names followed by the numeric feature names.
func (e *Extractor) FeatureNames() []string {
	if !e.fitted {
		return nil
	}
	names := make([]string, 0, e.NumFeatures())
	names = append(names, e.vocabulary...)
	return append(names, NumericFeatures...)
}

// FitTransform learns the vocabulary and idf weights from in, then encodes it.
func (e *Extractor) FitTransform(in Input) ([][]float64, error) {
	n, err := in.Len()
	if err != nil {
		return nil, err
	}

	docs := make([][]string, n)
	df := make(map[string]int)
	total := make(map[string]int)
	for i, desc := range in.Descriptions {
		docs[i] = Terms(NormalizeText(desc))
		seen := make(map[string]bool, len(docs[i]))
		for _, term := range docs[i] {
			total[term]++
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	vocab := make([]string, 0, len(df))
	for term, count := range df {
		if count >= e.cfg.MinDocumentFrequency {
			vocab = append(vocab, term)
		}
	}

	if len(vocab) > e.cfg.MaxVocabulary {
		sort.Slice(vocab, func(a, b int) bool {
			if total[vocab[a]] != total[vocab[b]] {
				return total[vocab[a]] > total[vocab[b]]
			}
			return vocab[a] < vocab[b]
		})
		vocab = vocab[:e.cfg.MaxVocabulary]
	}
	sort.Strings(vocab)

	e.vocabulary = vocab
	e.index = make(map[string]int, len(vocab))
	e.idf = make([]float64, len(vocab))
	for i, term := range vocab {
		e.index[term] = i
		e.idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	e.fitted = true

	out := make([][]float64, n)
	for i := range n {
		out[i] = e.encode(docs[i], in.Amounts[i], in.Types[i], in.Dates[i])
	}
	return out, nil
}

// Transform encodes in with the fitted vocabulary.
func (e *Extractor) Transform(in Input) ([][]float64, error) {
	if !e.fitted {
		return nil, ErrNotFitted
	}
	n, err := in.Len()
	if err != nil {
		return nil, err
	}

	out := make([][]float64, n)
	for i := range n {
		out[i] = e.encode(Terms(NormalizeText(in.Descriptions[i])), in.Amounts[i], in.Types[i], in.Dates[i])
	}
	return out, nil
}

func (e *Extractor) encode(terms []string, amount float64, typ model.TransactionType, date time.Time) []float64 {
	row := make([]float64, e.NumFeatures())

	for _, term := range terms {
		if idx, ok := e.index[term]; ok {
			row[idx]++
		}
	}

	var norm float64
	for i := range e.vocabulary {
		row[i] *= e.idf[i]
		norm += row[i] * row[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range e.vocabulary {
			row[i] /= norm
		}
	}

	base := len(e.vocabulary)
	row[base] = math.Log1p(math.Abs(amount))
	if typ.IsCredit() {
		row[base+1] = 1
	}
	row[base+2] = float64(date.Day()) / 31.0

	return row
}
