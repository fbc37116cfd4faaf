// Package artifact persists trained classifiers as versioned JSON files.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/Veraticus/spice-ledger/internal/features"
	"github.com/Veraticus/spice-ledger/internal/forest"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/training"
)

// SchemaVersion is bumped whenever the file layout changes.
const SchemaVersion = 1

// ErrIncompatible is returned for artifacts written with another schema.
var ErrIncompatible = errors.New("incompatible model artifact")

// Artifact is the complete fitted model. The extractor state and the forest
// are only valid as a pair, so they are always written and read together.
type Artifact struct {
	CreatedAt  time.Time             `json:"created_at"`
	Forest     *forest.Forest        `json:"forest"`
	Version    string                `json:"version"`
	Categories []string              `json:"categories"`
	Features   features.State        `json:"features"`
	Metrics    model.TrainingMetrics `json:"metrics"`
	Schema     int                   `json:"schema_version"`
}

// New packages a training result under version.
func New(version string, result *training.Result) (*Artifact, error) {
	state, err := result.Extractor.State()
	if err != nil {
		return nil, err
	}
	metrics := result.Metrics
	metrics.ModelVersion = version

	a := &Artifact{
		Schema:     SchemaVersion,
		Version:    version,
		CreatedAt:  time.Now().UTC(),
		Categories: slices.Clone(result.Categories),
		Features:   state,
		Forest:     result.Forest,
		Metrics:    metrics,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks that the extractor, forest and category map agree.
func (a *Artifact) Validate() error {
	if a.Schema != SchemaVersion {
		return fmt.Errorf("%w: schema version %d, want %d", ErrIncompatible, a.Schema, SchemaVersion)
	}
	if a.Forest == nil {
		return fmt.Errorf("%w: missing forest", ErrIncompatible)
	}
	if len(a.Categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrIncompatible)
	}
	if a.Forest.NumClasses != len(a.Categories) {
		return fmt.Errorf("%w: forest has %d classes for %d categories",
			ErrIncompatible, a.Forest.NumClasses, len(a.Categories))
	}
	want := len(a.Features.Vocabulary) + len(a.Features.NumericFeatures)
	if a.Forest.NumFeatures != want {
		return fmt.Errorf("%w: forest expects %d features, extractor produces %d",
			ErrIncompatible, a.Forest.NumFeatures, want)
	}
	if err := a.Forest.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	return nil
}

// Extractor rebuilds the fitted feature extractor.
func (a *Artifact) Extractor() (*features.Extractor, error) {
	return features.FromState(a.Features)
}

// Read loads and validates an artifact file.
func Read(path string) (*Artifact, error) {
	// #nosec G304 - path is built from the configured models directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Write stores a at path atomically: readers see either the old file or the
// complete new one.
func Write(path string, a *Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}
