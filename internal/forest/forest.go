// Package forest implements a random forest of CART classification trees.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrEmptyTrainingSet is returned when Fit receives no rows.
var ErrEmptyTrainingSet = errors.New("empty training set")

// Config controls tree growth.
type Config struct {
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is the number of candidate features per split; 0 means sqrt.
	MaxFeatures int
	Workers     int
	Seed        uint64
}

// DefaultConfig mirrors the stock training parameters.
func DefaultConfig() Config {
	return Config{
		NumTrees:        200,
		MaxDepth:        20,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
	}
}

func (c Config) withDefaults(numFeatures int) Config {
	if c.NumTrees <= 0 {
		c.NumTrees = 100
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = math.MaxInt32
	}
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = 2
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = 1
	}
	if c.MaxFeatures <= 0 {
		c.MaxFeatures = int(math.Sqrt(float64(numFeatures)))
	}
	c.MaxFeatures = max(1, min(c.MaxFeatures, numFeatures))
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Forest is a fitted ensemble. All fields are plain data so the forest can be
// written to and read from an artifact.
type Forest struct {
	Trees       []Tree    `json:"trees"`
	Importances []float64 `json:"feature_importances"`
	NumClasses  int       `json:"num_classes"`
	NumFeatures int       `json:"num_features"`
}

// BalancedClassWeights returns n/(k*count_c) per class.
func BalancedClassWeights(y []int, numClasses int) []float64 {
	counts := make([]int, numClasses)
	for _, c := range y {
		counts[c]++
	}
	weights := make([]float64, numClasses)
	for c, count := range counts {
		if count > 0 {
			weights[c] = float64(len(y)) / float64(numClasses*count)
		}
	}
	return weights
}

// Fit grows cfg.NumTrees trees on bootstrap samples of X. Trees are grown
// concurrently; each tree's randomness depends only on cfg.Seed and its index.
// progress, when non-nil, is called once per finished tree.
func Fit(ctx context.Context, X [][]float64, y []int, numClasses int, cfg Config, progress func()) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("forest: %d rows but %d labels", len(X), len(y))
	}
	if numClasses < 1 {
		return nil, fmt.Errorf("forest: invalid class count %d", numClasses)
	}
	numFeatures := len(X[0])
	for i, row := range X {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("forest: row %d has %d features, want %d", i, len(row), numFeatures)
		}
	}
	for i, c := range y {
		if c < 0 || c >= numClasses {
			return nil, fmt.Errorf("forest: label %d out of range at row %d", c, i)
		}
	}

	cfg = cfg.withDefaults(numFeatures)
	classWeights := BalancedClassWeights(y, numClasses)

	f := &Forest{
		Trees:       make([]Tree, cfg.NumTrees),
		NumClasses:  numClasses,
		NumFeatures: numFeatures,
	}
	treeImportances := make([][]float64, cfg.NumTrees)

	var progressMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for t := range cfg.NumTrees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(t)))

			weights := make([]float64, len(X))
			for range len(X) {
				weights[rng.IntN(len(X))]++
			}
			for i := range weights {
				weights[i] *= classWeights[y[i]]
			}

			tg := grower{
				X:          X,
				y:          y,
				weights:    weights,
				numClasses: numClasses,
				cfg:        cfg,
				rng:        rng,
				importance: make([]float64, numFeatures),
			}
			f.Trees[t] = tg.grow()
			treeImportances[t] = normalize(tg.importance)

			if progress != nil {
				progressMu.Lock()
				progress()
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.Importances = make([]float64, numFeatures)
	for _, imp := range treeImportances {
		for j, v := range imp {
			f.Importances[j] += v
		}
	}
	f.Importances = normalize(f.Importances)

	return f, nil
}

// PredictProba averages the leaf class distributions of every tree.
func (f *Forest) PredictProba(x []float64) []float64 {
	proba := make([]float64, f.NumClasses)
	if len(f.Trees) == 0 {
		return proba
	}
	for i := range f.Trees {
		leaf := f.Trees[i].leaf(x)
		for c, v := range leaf {
			proba[c] += v
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba
}

// Predict returns the most probable class; ties go to the lower index.
func (f *Forest) Predict(x []float64) int {
	return Argmax(f.PredictProba(x))
}

// Argmax returns the index of the largest value, preferring the lowest index.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Validate checks the structure of a forest read from storage.
func (f *Forest) Validate() error {
	if f.NumClasses < 1 {
		return fmt.Errorf("forest: invalid class count %d", f.NumClasses)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest: no trees")
	}
	if len(f.Importances) != f.NumFeatures {
		return fmt.Errorf("forest: %d importances for %d features", len(f.Importances), f.NumFeatures)
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.NumFeatures, f.NumClasses); err != nil {
			return fmt.Errorf("forest: tree %d: %w", i, err)
		}
	}
	return nil
}

func normalize(values []float64) []float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	out := make([]float64, len(values))
	if sum <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / sum
	}
	return out
}
