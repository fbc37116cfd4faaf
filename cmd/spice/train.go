package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/retrain"
	"github.com/Veraticus/spice-ledger/internal/training"
	"github.com/Veraticus/spice-ledger/internal/uploads"
)

func trainCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and manage categorization models",
		Long: `Train a new model from a labeled CSV/XLSX file or from the transactions
you have already reviewed, and inspect past training jobs.

New models become live automatically when retrain.auto_activate is set;
otherwise use 'spice train activate <version>'.`,
	}

	cmd.AddCommand(trainFileCmd(opts))
	cmd.AddCommand(trainAutoCmd(opts))
	cmd.AddCommand(trainHistoryCmd(opts))
	cmd.AddCommand(trainShowCmd(opts))
	cmd.AddCommand(trainVersionsCmd(opts))
	cmd.AddCommand(trainActivateCmd(opts))
	cmd.AddCommand(trainValidateCmd())
	cmd.AddCommand(trainPreviewCmd())

	return cmd
}

func trainFileCmd(opts *rootOptions) *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Train a model from a labeled CSV or XLSX file",
		Long: `Train from a spreadsheet with either an English layout
(date, description, value, category) or the bank export layout
(Data de Efetivação, Descrição, Valor, Categoria).

Categories with fewer than two rows are dropped before training.`,
		Example: `  spice train csv labeled-2023.csv
  spice train csv history.xlsx --owner 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cli.NewInterruptHandler(cmd.ErrOrStderr()).
				HandleInterrupts(cmd.Context(), "Training", "No model was saved; rerun the command to train again.")

			if problems := training.Validate(args[0]); len(problems) > 0 {
				for _, p := range problems {
					out(cmd, "%s\n", cli.FormatError(p))
				}
				return fmt.Errorf("%s is not a valid training file", args[0])
			}

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			stored, err := a.uploads.SaveFile(ctx, uploads.KindTraining, args[0])
			if err != nil {
				return err
			}

			progress := cli.NewProgress(cmd.ErrOrStderr(), "Training")
			a.trainer.Progress = progress.Update
			result, err := a.trainer.TrainFromFile(ctx, ownerOr(owner, a), stored.Path)
			progress.Finish()
			if err != nil {
				return err
			}
			return printTrainingResult(cmd, result)
		},
	}

	cmd.Flags().Int64Var(&owner, "owner", 0, "owner id recorded on the job (default import.owner)")

	return cmd
}

func trainAutoCmd(opts *rootOptions) *cobra.Command {
	var (
		owner       int64
		minRequired int
	)

	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Retrain from reviewed transactions",
		Long: `Train on every approved or modified transaction. Nothing happens when
fewer than --min reviewed transactions exist.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cli.NewInterruptHandler(cmd.ErrOrStderr()).
				HandleInterrupts(cmd.Context(), "Training", "No model was saved.")

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if minRequired <= 0 {
				minRequired = a.cfg.Retrain.MinRequired
			}

			progress := cli.NewProgress(cmd.ErrOrStderr(), "Retraining")
			a.trainer.Progress = progress.Update
			result, err := a.trainer.AutoRetrain(ctx, ownerOr(owner, a), minRequired)
			progress.Finish()
			if err != nil {
				return err
			}
			return printTrainingResult(cmd, result)
		},
	}

	cmd.Flags().Int64Var(&owner, "owner", 0, "owner id recorded on the job (default import.owner)")
	cmd.Flags().IntVar(&minRequired, "min", 0, "minimum reviewed transactions required (default retrain.min_required)")

	return cmd
}

func trainHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		owner  int64
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List training jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.trainer.History(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			if format == "yaml" {
				return writeYAML(cmd, jobs)
			}
			if len(jobs) == 0 {
				out(cmd, "%s\n", cli.SubtleStyle.Render("No training jobs yet."))
				return nil
			}

			tw := newTable(cmd.OutOrStdout(), "ID", "CREATED", "STATUS", "SOURCE", "VERSION", "ACCURACY", "F1")
			for _, job := range jobs {
				accuracy, f1 := "-", "-"
				if job.Metrics != nil {
					accuracy = fmt.Sprintf("%.1f%%", job.Metrics.Accuracy*100)
					f1 = fmt.Sprintf("%.3f", job.Metrics.F1Score)
				}
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					job.ID,
					job.CreatedAt.Local().Format("2006-01-02 15:04"),
					formatJobStatus(job.Status),
					job.Source,
					orDash(job.ModelVersion),
					accuracy,
					f1)
			}
			flushTable(tw)
			return nil
		},
	}

	cmd.Flags().Int64Var(&owner, "owner", 0, "only jobs for this owner (0 for all)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum jobs to show")
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, yaml)")

	return cmd
}

func trainShowCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one training job and its metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			id, err := parseID(args[0], "training job")
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.trainer.Job(cmd.Context(), id)
			if err != nil {
				return err
			}
			if format == "yaml" {
				return writeYAML(cmd, job)
			}

			out(cmd, "%s\n", cli.FormatTitle(fmt.Sprintf("Training job %d", job.ID)))
			out(cmd, "  Status:  %s\n", formatJobStatus(job.Status))
			out(cmd, "  Source:  %s\n", job.Source)
			out(cmd, "  Created: %s\n", job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if job.CompletedAt != nil {
				out(cmd, "  Took:    %s\n", job.CompletedAt.Sub(job.CreatedAt).Round(time.Millisecond))
			}
			if job.FilePath != "" {
				out(cmd, "  File:    %s\n", job.FilePath)
			}
			if job.ModelVersion != "" {
				out(cmd, "  Model:   %s\n", job.ModelVersion)
			}
			if job.ErrorMessage != "" {
				out(cmd, "%s\n", cli.FormatError(job.ErrorMessage))
			}
			if job.Metrics != nil {
				printMetrics(cmd, job.Metrics)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table, yaml)")

	return cmd
}

func trainVersionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List stored model versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.trainer.Versions()
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				out(cmd, "%s\n", cli.SubtleStyle.Render("No trained models yet."))
				return nil
			}

			tw := newTable(cmd.OutOrStdout(), "VERSION", "CREATED", "LIVE")
			for _, v := range versions {
				live := ""
				if v.Live {
					live = cli.SuccessStyle.Render(cli.SuccessIcon)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Version, formatRelativeTime(v.CreatedAt), live)
			}
			flushTable(tw)
			return nil
		},
	}
}

func trainActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <version>",
		Short: "Make a stored model version the live model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			backup, err := a.trainer.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Model %s is now live", args[0])))
			if backup != "" {
				out(cmd, "  Previous model backed up to %s\n", backup)
			}
			return nil
		},
	}
}

func trainValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a training file without training",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems := training.Validate(args[0])
			if len(problems) == 0 {
				out(cmd, "%s\n", cli.FormatSuccess(args[0]+" is a valid training file"))
				return nil
			}
			for _, p := range problems {
				out(cmd, "%s\n", cli.FormatError(p))
			}
			return fmt.Errorf("%d problem(s) in %s", len(problems), args[0])
		},
	}
}

func trainPreviewCmd() *cobra.Command {
	var (
		rows   int
		format string
	)

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show the first rows and categories of a training file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			preview, err := training.Preview(args[0], rows)
			if err != nil {
				return err
			}
			if format == "yaml" {
				return writeYAML(cmd, preview)
			}

			out(cmd, "%s\n", cli.FormatTitle(fmt.Sprintf("%s (%s layout)", args[0], preview.Layout)))
			out(cmd, "  Rows: %d  Categories: %d\n\n", preview.TotalRows, preview.CategoryCount)

			tw := newTable(cmd.OutOrStdout(), preview.Columns...)
			for _, row := range preview.Rows {
				cells := make([]string, len(preview.Columns))
				for i, col := range preview.Columns {
					cells[i] = orDash(row[col])
				}
				_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			flushTable(tw)

			if len(preview.SampleCategories) > 0 {
				out(cmd, "\nCategories: %s\n", strings.Join(preview.SampleCategories, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 10, "rows to show")
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, yaml)")

	return cmd
}

func ownerOr(owner int64, a *app) int64 {
	if owner > 0 {
		return owner
	}
	return a.cfg.Import.Owner
}

func printTrainingResult(cmd *cobra.Command, result *retrain.Result) error {
	if result.Insufficient {
		out(cmd, "%s\n", cli.FormatWarning(fmt.Sprintf(
			"Not enough labeled data to train: %d eligible, %d required",
			result.Eligible, result.Required)))
		return nil
	}

	out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Training job %d completed", result.Job.ID)))
	out(cmd, "  Model:   %s\n", result.Job.ModelVersion)
	out(cmd, "  Saved:   %s\n", result.ModelPath)
	if result.Activated {
		out(cmd, "  %s\n", cli.SuccessStyle.Render("Activated as the live model"))
	} else {
		out(cmd, "  %s\n", cli.SubtleStyle.Render("Run 'spice train activate "+result.Job.ModelVersion+"' to use it"))
	}
	if len(result.Pruned) > 0 {
		out(cmd, "%s\n", cli.FormatWarning("Dropped categories with too few rows: "+strings.Join(result.Pruned, ", ")))
	}
	if result.Metrics != nil {
		printMetrics(cmd, result.Metrics)
	}
	return nil
}

func printMetrics(cmd *cobra.Command, m *model.TrainingMetrics) {
	var b strings.Builder
	fmt.Fprintf(&b, "Accuracy:     %.1f%%\n", m.Accuracy*100)
	fmt.Fprintf(&b, "F1 (weighted): %.3f\n", m.F1Score)
	fmt.Fprintf(&b, "CV accuracy:  %.1f%% ± %.1f%%\n", m.CVMean*100, m.CVStd*100)
	fmt.Fprintf(&b, "Samples:      %d train / %d test\n", m.TrainSamples, m.TestSamples)
	fmt.Fprintf(&b, "Features:     %d\n", m.FeatureCount)
	fmt.Fprintf(&b, "Categories:   %d", len(m.Categories))
	out(cmd, "\n%s\n", cli.RenderBox(cli.ChartIcon+" Model quality", b.String()))

	if len(m.CategoryReport) > 0 {
		tw := newTable(cmd.OutOrStdout(), "CATEGORY", "PRECISION", "RECALL", "F1", "SUPPORT")
		for _, r := range m.CategoryReport {
			_, _ = fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\n", r.Category, r.Precision, r.Recall, r.F1, r.Support)
		}
		flushTable(tw)
	}

	if len(m.TopFeatures) > 0 {
		out(cmd, "\n%s\n", cli.BoldStyle.Render("Most important features"))
		for i, f := range m.TopFeatures {
			out(cmd, "  %2d. %-30s %.4f\n", i+1, f.Feature, f.Importance)
		}
	}
}

func formatJobStatus(status model.TrainingStatus) string {
	switch status {
	case model.TrainingCompleted:
		return cli.SuccessStyle.Render(string(status))
	case model.TrainingFailed:
		return cli.ErrorStyle.Render(string(status))
	default:
		return cli.WarningStyle.Render(string(status))
	}
}
