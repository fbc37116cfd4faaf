// Package retrain trains new classifier versions from reviewed transactions
// or uploaded training files, records training jobs, and activates models.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-ledger/internal/artifact"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/metrics"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/training"
)

// DefaultMinRequired is the auto-retrain threshold when none is given.
const DefaultMinRequired = 100

// Reloader refreshes whatever serves predictions after activation.
type Reloader interface {
	Reload() error
}

// Result reports one training attempt. Insufficient is set, and Job is nil,
// when there was not enough labeled data to train.
type Result struct {
	Job          *model.TrainingJob
	Metrics      *model.TrainingMetrics
	ModelPath    string
	Pruned       []string
	Eligible     int
	Required     int
	Insufficient bool
	Activated    bool
}

// Config controls the service.
type Config struct {
	Training training.Config
	// Retry applies to training job writes. Zero values use the
	// common.WithRetry defaults.
	Retry        service.RetryOptions
	MinRequired  int
	AutoActivate bool
}

// Service runs training jobs.
type Service struct {
	storage  service.Storage
	store    *artifact.Store
	reloader Reloader
	metrics  *metrics.Pipeline
	logger   *slog.Logger
	// Progress, when set, receives per-tree progress of each run.
	Progress func(done, total int)
	now      func() time.Time
	cfg      Config
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records training metrics on m.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(s *Service) { s.metrics = m }
}

// WithReloader is notified after a model is activated.
func WithReloader(r Reloader) Option {
	return func(s *Service) { s.reloader = r }
}

// NewService creates a training service.
func NewService(store service.Storage, artifacts *artifact.Store, cfg Config, opts ...Option) *Service {
	if cfg.MinRequired <= 0 {
		cfg.MinRequired = DefaultMinRequired
	}
	s := &Service{
		storage: store,
		store:   artifacts,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LabeledTransactions returns reviewed transactions as training rows.
func (s *Service) LabeledTransactions(ctx context.Context) ([]model.LabeledTransaction, error) {
	reviewed, err := s.storage.ListLabeledTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviewed transactions: %w", err)
	}
	rows := make([]model.LabeledTransaction, 0, len(reviewed))
	for i := range reviewed {
		p := &reviewed[i]
		category := p.FinalCategory()
		if category == "" {
			continue
		}
		rows = append(rows, model.LabeledTransaction{
			Date:        p.Date,
			Amount:      p.Amount,
			Description: p.Description,
			Type:        p.Type,
			Category:    category,
		})
	}
	return rows, nil
}

// AutoRetrain trains on every APPROVED or MODIFIED transaction. Below
// minRequired rows it returns an Insufficient result and creates no job.
// A non-positive minRequired uses the configured threshold.
func (s *Service) AutoRetrain(ctx context.Context, owner int64, minRequired int) (*Result, error) {
	if minRequired <= 0 {
		minRequired = s.cfg.MinRequired
	}
	rows, err := s.LabeledTransactions(ctx)
	if err != nil {
		return nil, err
	}

	if len(rows) < minRequired {
		s.logger.Info("Not enough reviewed transactions to retrain",
			"count", len(rows),
			"required", minRequired)
		s.metrics.ObserveInsufficientData(model.SourceAutoRetrain)
		return &Result{Insufficient: true, Eligible: len(rows), Required: minRequired}, nil
	}

	result, err := s.train(ctx, owner, model.SourceAutoRetrain, "", rows)
	if result != nil {
		result.Required = minRequired
	}
	return result, err
}

// TrainFromFile trains on a CSV or XLSX training file. Unreadable files and
// unknown layouts are rejected before any job is recorded.
func (s *Service) TrainFromFile(ctx context.Context, owner int64, path string) (*Result, error) {
	dataset, err := training.LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Loaded training file",
		"path", path,
		"layout", dataset.Layout,
		"count", len(dataset.Rows),
		"skipped", dataset.Skipped)

	return s.train(ctx, owner, model.SourceManualCSV, path, dataset.Rows)
}

func (s *Service) train(ctx context.Context, owner int64, source model.TrainingSource, filePath string, rows []model.LabeledTransaction) (*Result, error) {
	kept, pruned, err := training.Prepare(rows, slog.New(slog.DiscardHandler))
	if errors.Is(err, training.ErrInsufficientData) {
		s.metrics.ObserveInsufficientData(source)
		return &Result{Insufficient: true, Eligible: len(rows), Pruned: pruned}, nil
	}
	if err != nil {
		return nil, err
	}

	job := &model.TrainingJob{
		Status:   model.TrainingRunning,
		Source:   source,
		FilePath: filePath,
		OwnerID:  owner,
	}
	if err := s.storage.CreateTrainingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record training job: %w", err)
	}
	s.logger.Info("Training job started", "job_id", job.ID, "source", source, "count", len(kept))

	result := &Result{Job: job, Eligible: len(rows), Pruned: pruned}

	trainer := training.NewTrainer(s.cfg.Training, s.logger)
	trainer.Progress = s.Progress
	trained, err := trainer.Train(ctx, rows)
	if err != nil {
		return result, s.fail(ctx, job, err)
	}

	saved, path, err := s.store.Save(trained)
	if err != nil {
		return result, s.fail(ctx, job, fmt.Errorf("failed to save model: %w", err))
	}

	completedAt := s.now().UTC()
	job.Status = model.TrainingCompleted
	job.ModelVersion = saved.Version
	job.Metrics = &saved.Metrics
	job.CompletedAt = &completedAt
	if err := s.updateJob(ctx, job); err != nil {
		if rmErr := s.store.Remove(saved.Version); rmErr != nil {
			s.logger.Warn("Failed to remove unrecorded model", "model_version", saved.Version, "error", rmErr)
		}
		job.ModelVersion = ""
		job.Metrics = nil
		return result, s.fail(ctx, job, fmt.Errorf("failed to record training result: %w", err))
	}

	result.Metrics = &saved.Metrics
	result.ModelPath = path
	s.metrics.ObserveTraining(source, result.Metrics, nil)
	s.logger.Info("Training job completed",
		"job_id", job.ID,
		"model_version", saved.Version,
		"accuracy", saved.Metrics.Accuracy)

	if s.cfg.AutoActivate {
		if _, err := s.Activate(ctx, saved.Version); err != nil {
			return result, err
		}
		result.Activated = true
	}
	return result, nil
}

// fail marks job FAILED and returns cause.
func (s *Service) fail(ctx context.Context, job *model.TrainingJob, cause error) error {
	completedAt := s.now().UTC()
	job.Status = model.TrainingFailed
	job.ErrorMessage = cause.Error()
	job.CompletedAt = &completedAt

	s.metrics.ObserveTraining(job.Source, nil, cause)
	s.logger.Error("Training job failed", "job_id", job.ID, "error", cause)

	if err := s.updateJob(ctx, job); err != nil {
		s.logger.Error("Failed to record training failure", "job_id", job.ID, "error", err)
	}
	return cause
}

// updateJob writes a terminal job state. The write is detached from ctx so a
// cancellation after training cannot leave the job RUNNING.
func (s *Service) updateJob(ctx context.Context, job *model.TrainingJob) error {
	detached := context.WithoutCancel(ctx)
	return common.WithRetry(detached, func() error {
		return s.storage.UpdateTrainingJob(detached, job)
	}, s.cfg.Retry)
}

// Activate makes version the live model and reloads the predictor. It
// returns the path of the backup taken of the previous live model, if any.
func (s *Service) Activate(_ context.Context, version string) (string, error) {
	backup, err := s.store.Activate(version)
	if err != nil {
		return "", fmt.Errorf("failed to activate model %s: %w", version, err)
	}
	if s.reloader != nil {
		if err := s.reloader.Reload(); err != nil {
			return backup, fmt.Errorf("model %s activated but reload failed: %w", version, err)
		}
	}
	return backup, nil
}

// History lists training jobs, newest first.
func (s *Service) History(ctx context.Context, owner int64, limit int) ([]model.TrainingJob, error) {
	return s.storage.ListTrainingJobs(ctx, service.TrainingJobFilter{OwnerID: owner, Limit: limit})
}

// Job returns one training job.
func (s *Service) Job(ctx context.Context, id int64) (*model.TrainingJob, error) {
	return s.storage.GetTrainingJob(ctx, id)
}

// Versions lists stored model versions.
func (s *Service) Versions() ([]artifact.VersionInfo, error) {
	return s.store.Versions()
}
