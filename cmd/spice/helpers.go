package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/spice-ledger/internal/artifact"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/dedup"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/features"
	"github.com/Veraticus/spice-ledger/internal/forest"
	"github.com/Veraticus/spice-ledger/internal/metrics"
	"github.com/Veraticus/spice-ledger/internal/predict"
	"github.com/Veraticus/spice-ledger/internal/retrain"
	"github.com/Veraticus/spice-ledger/internal/storage"
	"github.com/Veraticus/spice-ledger/internal/training"
	"github.com/Veraticus/spice-ledger/internal/uploads"
)

// app is the wired pipeline used by the commands.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *storage.SQLiteStorage
	checkpoints *storage.CheckpointManager
	artifacts   *artifact.Store
	live        *predict.Live
	metrics     *metrics.Pipeline
	engine      *engine.Engine
	detector    *dedup.Detector
	trainer     *retrain.Service
	uploads     *uploads.Store
}

// openApp opens the database, runs migrations, loads the live model and
// wires every component.
func (o *rootOptions) openApp(ctx context.Context) (*app, error) {
	cfg := o.cfg
	logger := slog.Default()

	store, err := initStorage(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	if cm, cmErr := store.NewCheckpointManager(); cmErr != nil {
		logger.Debug("Checkpoints disabled", "error", cmErr)
	} else {
		a.checkpoints = cm
	}

	a.artifacts = artifact.NewStore(cfg.Storage.ModelsDir, cfg.Model.LiveName, logger)
	a.live = predict.NewLive(a.artifacts, logger)
	if err := a.live.Reload(); err != nil {
		if !errors.Is(err, predict.ErrModelUnavailable) {
			_ = store.Close()
			return nil, fmt.Errorf("failed to load live model: %w", err)
		}
		logger.Info("No active model, transactions will be imported uncategorized")
	}

	a.uploads, err = uploads.New(cfg.Storage.UploadsDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engineOpts := []engine.Option{engine.WithLogger(logger), engine.WithMetrics(a.metrics)}
	detectorOpts := []dedup.Option{dedup.WithLogger(logger), dedup.WithMetrics(a.metrics)}
	if a.checkpoints != nil {
		engineOpts = append(engineOpts, engine.WithCheckpointer(a.checkpoints))
		detectorOpts = append(detectorOpts, dedup.WithCheckpointer(a.checkpoints))
	}

	engCfg := engine.DefaultConfig()
	engCfg.TimeBudget = cfg.Import.TimeBudget
	engCfg.DefaultOwner = cfg.Import.Owner
	a.engine = engine.New(store, a.live, engCfg, engineOpts...)

	detectorOpts = append(detectorOpts, dedup.WithCompleter(a.engine))
	a.detector = dedup.NewDetector(store, dedup.Criteria{
		ThresholdDays: cfg.Dedup.ThresholdDays,
		Similarity:    cfg.Dedup.Similarity,
	}, cfg.Dedup.MaxCandidates, detectorOpts...)

	a.trainer = retrain.NewService(store, a.artifacts, retrain.Config{
		Training:     trainingConfig(cfg),
		MinRequired:  cfg.Retrain.MinRequired,
		AutoActivate: cfg.Retrain.AutoActivate,
	}, retrain.WithLogger(logger), retrain.WithMetrics(a.metrics), retrain.WithReloader(a.live))

	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.ExpandPath(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func trainingConfig(cfg *config.Config) training.Config {
	tc := training.DefaultConfig()
	tc.Features = features.Config{
		MaxVocabulary:        cfg.Features.MaxVocabulary,
		MinDocumentFrequency: cfg.Features.MinDocumentFrequency,
	}
	fc := forest.DefaultConfig()
	fc.NumTrees = cfg.Training.Trees
	fc.MaxDepth = cfg.Training.MaxDepth
	fc.MinSamplesSplit = cfg.Training.MinSamplesSplit
	fc.MinSamplesLeaf = cfg.Training.MinSamplesLeaf
	fc.Seed = cfg.Training.Seed
	tc.Forest = fc
	tc.TestFraction = cfg.Training.TestFraction
	tc.CVFolds = cfg.Training.CVFolds
	tc.TopFeatures = cfg.Training.TopFeatures
	return tc
}

// out writes user-facing output to the command's stdout.
func out(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// writeYAML renders v as YAML on the command's stdout.
func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func checkFormat(format string) error {
	switch format {
	case "table", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table or yaml)", format)
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

// newTable starts an aligned table with styled headers.
func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			_, _ = fmt.Fprint(tw, "\t")
		}
		_, _ = fmt.Fprint(tw, headerStyle.Render(h))
	}
	_, _ = fmt.Fprintln(tw)
	return tw
}

func flushTable(tw *tabwriter.Writer) {
	if err := tw.Flush(); err != nil {
		slog.Error("failed to flush table writer", "error", err)
	}
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func parseIDs(args []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, what)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
