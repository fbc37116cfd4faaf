// Package engine implements the import orchestrator and the review workflow
// that moves import batches from upload to completion.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/metrics"
	"github.com/Veraticus/spice-ledger/internal/ofx"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// Checkpointer snapshots the database before destructive operations.
type Checkpointer interface {
	AutoCheckpoint(ctx context.Context, operation string) (*storage.CheckpointInfo, error)
}

// Config holds configuration options for the engine.
type Config struct {
	Retry        service.RetryOptions
	TimeBudget   time.Duration
	DefaultOwner int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TimeBudget:   2 * time.Minute,
		DefaultOwner: 1,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	}
}

// Engine orchestrates statement imports and reviews.
type Engine struct {
	storage      service.Storage
	categorizer  service.Categorizer
	parser       *ofx.Parser
	metrics      *metrics.Pipeline
	checkpointer Checkpointer
	logger       *slog.Logger
	now          func() time.Time
	cfg          Config
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCheckpointer snapshots the database before batch deletion.
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) { e.checkpointer = c }
}

// New creates an engine. A nil categorizer imports every transaction uncategorized.
func New(store service.Storage, categorizer service.Categorizer, cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = defaults.TimeBudget
	}
	if cfg.DefaultOwner <= 0 {
		cfg.DefaultOwner = defaults.DefaultOwner
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = defaults.Retry
	}

	e := &Engine{
		storage:     store,
		categorizer: categorizer,
		cfg:         cfg,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.parser = ofx.NewParser(e.logger)
	return e
}

// inTx runs fn in a unit of work, retrying the whole unit on retryable errors.
func (e *Engine) inTx(ctx context.Context, fn func(tx service.Transaction) error) error {
	return common.WithRetry(ctx, func() error {
		tx, err := e.storage.BeginTx(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				e.logger.Warn("Rollback failed", "error", rbErr)
			}
			return err
		}
		return tx.Commit()
	}, e.cfg.Retry)
}

// owner resolves the acting owner id.
func (e *Engine) owner(id int64) int64 {
	if id > 0 {
		return id
	}
	return e.cfg.DefaultOwner
}
