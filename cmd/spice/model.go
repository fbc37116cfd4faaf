package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/predict"
	"github.com/Veraticus/spice-ledger/internal/training"
)

func modelCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect the live categorization model",
	}

	cmd.AddCommand(modelInfoCmd(opts))
	cmd.AddCommand(modelEvaluateCmd(opts))

	return cmd
}

func modelInfoCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the live model's categories and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			info := a.live.Info()
			if format == "yaml" {
				return writeYAML(cmd, info)
			}
			if !info.Loaded {
				out(cmd, "%s\n", cli.FormatWarning("No live model. Train one with 'spice train csv <file>'."))
				return nil
			}

			out(cmd, "%s\n", cli.FormatTitle("Live model "+info.Version))
			out(cmd, "  Trees:      %d\n", info.Trees)
			out(cmd, "  Features:   %d\n", info.FeatureCount)
			out(cmd, "  Categories: %d\n", len(info.Categories))
			out(cmd, "    %s\n", strings.Join(info.Categories, ", "))
			if info.Metrics != nil {
				printMetrics(cmd, info.Metrics)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table, yaml)")

	return cmd
}

func modelEvaluateCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "evaluate <file>",
		Short: "Score the live model against a labeled training file",
		Long: `Predict every row of a labeled CSV/XLSX file with the live model and
compare against its categories: overall accuracy, accuracy per confidence
band, and the most common mistakes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			predictor, err := a.live.Current()
			if errors.Is(err, predict.ErrModelUnavailable) {
				return errors.New("no live model to evaluate")
			}
			if err != nil {
				return err
			}

			dataset, err := training.LoadFile(args[0])
			if err != nil {
				return err
			}
			report, err := predictor.Validate(dataset.Rows)
			if err != nil {
				return err
			}
			if format == "yaml" {
				return writeYAML(cmd, report)
			}
			printValidation(cmd, predictor.Version(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table, yaml)")

	return cmd
}

func printValidation(cmd *cobra.Command, version string, report *predict.ValidationReport) {
	var b strings.Builder
	fmt.Fprintf(&b, "Samples:  %d\n", report.Total)
	fmt.Fprintf(&b, "Correct:  %d\n", report.Correct)
	fmt.Fprintf(&b, "Accuracy: %.1f%%", report.Accuracy*100)
	out(cmd, "%s\n", cli.RenderBox(cli.ChartIcon+" Model "+version, b.String()))

	tw := newTable(cmd.OutOrStdout(), "CONFIDENCE", "COUNT", "CORRECT", "ACCURACY")
	for _, level := range []model.ConfidenceLevel{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
		band, ok := report.ByLevel[level]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\n",
			cli.ConfidenceStyle(level).Render(string(level)), band.Count, band.Correct, band.Accuracy*100)
	}
	flushTable(tw)

	if len(report.CommonErrors) > 0 {
		out(cmd, "\n%s\n", cli.BoldStyle.Render("Most common mistakes"))
		tw = newTable(cmd.OutOrStdout(), "ACTUAL", "PREDICTED", "COUNT")
		for _, c := range report.CommonErrors {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Actual, c.Predicted, c.Count)
		}
		flushTable(tw)
	}
}
