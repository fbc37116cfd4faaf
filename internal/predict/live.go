package predict

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Veraticus/spice-ledger/internal/artifact"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Live holds the predictor for the active model. Readers always see a
// complete predictor; Reload swaps it in one step.
type Live struct {
	store   *artifact.Store
	logger  *slog.Logger
	current atomic.Pointer[Predictor]
}

// NewLive creates a holder for store's live model. Call Reload to load it.
func NewLive(store *artifact.Store, logger *slog.Logger) *Live {
	if logger == nil {
		logger = slog.Default()
	}
	return &Live{store: store, logger: logger}
}

// Reload reads the live artifact. When none exists the holder is emptied and
// ErrModelUnavailable is returned. A corrupt artifact leaves the previous
// predictor in place.
func (l *Live) Reload() error {
	a, err := l.store.LoadLive()
	if errors.Is(err, artifact.ErrNoLiveModel) {
		l.current.Store(nil)
		return ErrModelUnavailable
	}
	if err != nil {
		l.logger.Error("Failed to load live model", "error", err)
		return err
	}
	p, err := New(a)
	if err != nil {
		l.logger.Error("Failed to load live model", "error", err)
		return err
	}
	l.current.Store(p)
	l.logger.Info("Loaded live model", "model_version", a.Version, "categories", len(a.Categories))
	return nil
}

// Current returns the loaded predictor.
func (l *Live) Current() (*Predictor, error) {
	p := l.current.Load()
	if p == nil {
		return nil, ErrModelUnavailable
	}
	return p, nil
}

// PredictTransactions scores with the current predictor.
func (l *Live) PredictTransactions(ctx context.Context, txns []model.ParsedTransaction) ([]model.PredictionResult, error) {
	p, err := l.Current()
	if err != nil {
		return nil, err
	}
	return p.PredictTransactions(ctx, txns)
}

// Info reports the current model, or Loaded=false.
func (l *Live) Info() Info {
	p, err := l.Current()
	if err != nil {
		return Info{}
	}
	return p.Info()
}
