package retrain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs AutoRetrain on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger
	baseCtx context.Context
	owner   int64
}

// NewScheduler creates a scheduler. Jobs run with baseCtx.
func NewScheduler(baseCtx context.Context, svc *Service, owner int64, logger *slog.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		service: svc,
		logger:  logger,
		baseCtx: baseCtx,
		owner:   owner,
	}
}

// Add registers an auto-retrain run on schedule, such as "@weekly" or "0 3 * * 0".
func (s *Scheduler) Add(schedule string, minRequired int) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(schedule, func() { s.RunOnce(s.baseCtx, minRequired) })
	if err != nil {
		return 0, fmt.Errorf("invalid retrain schedule %q: %w", schedule, err)
	}
	return id, nil
}

// RunOnce performs one scheduled retrain and logs its outcome.
func (s *Scheduler) RunOnce(ctx context.Context, minRequired int) {
	result, err := s.service.AutoRetrain(ctx, s.owner, minRequired)
	switch {
	case err != nil:
		s.logger.Error("Scheduled retrain failed", "error", err)
	case result.Insufficient:
		s.logger.Info("Scheduled retrain skipped", "count", result.Eligible, "required", result.Required)
	default:
		s.logger.Info("Scheduled retrain finished",
			"model_version", result.Job.ModelVersion,
			"activated", result.Activated)
	}
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info("Retrain scheduler started", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Retrain scheduler stopped")
}
