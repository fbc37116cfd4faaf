package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/uploads"
)

func importCmd(opts *rootOptions) *cobra.Command {
	var (
		owner  int64
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import OFX bank statements",
		Long: `Parse one or more OFX/QFX statements, predict a category for every
transaction and store them as a batch awaiting review.

Transactions whose FITID is already stored are skipped, so importing the
same statement twice adds nothing.`,
		Example: `  spice import ~/Downloads/checking-2024-03.ofx
  spice import --dry-run statement.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cli.NewInterruptHandler(cmd.ErrOrStderr()).
				HandleInterrupts(cmd.Context(), "Import", "Statements already imported are kept; rerun to import the rest.")

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var failed []error
			for _, path := range args {
				if dryRun {
					err = analyzeFile(cmd, a, path)
				} else {
					err = importFile(cmd, a, path, owner)
				}
				if err != nil {
					out(cmd, "%s\n", cli.FormatError(fmt.Sprintf("%s: %v", filepath.Base(path), err)))
					failed = append(failed, fmt.Errorf("%s: %w", path, err))
				}
				if ctx.Err() != nil {
					break
				}
			}
			return errors.Join(failed...)
		},
	}

	cmd.Flags().Int64Var(&owner, "owner", 0, "owner id for the new batches (default import.owner)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and predict without storing anything")

	return cmd
}

func importFile(cmd *cobra.Command, a *app, path string, owner int64) error {
	ctx := cmd.Context()

	stored, err := a.uploads.SaveFile(ctx, uploads.KindStatement, path)
	if err != nil {
		return err
	}
	f, err := os.Open(stored.Path)
	if err != nil {
		return fmt.Errorf("failed to open stored statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	result, err := a.engine.Import(ctx, engine.ImportRequest{
		Reader:   f,
		Filename: filepath.Base(path),
		FilePath: stored.Path,
		Owner:    owner,
	})
	if err != nil {
		return err
	}

	printImportResult(cmd, result)
	return nil
}

func printImportResult(cmd *cobra.Command, result *engine.ImportResult) {
	batch := result.Batch
	needsReview := 0
	for i := range result.Pending {
		if result.Pending[i].NeedsReview() {
			needsReview++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Batch:        %d (%s)\n", batch.ID, cli.FormatBatchStatus(batch.Status))
	fmt.Fprintf(&b, "Institution:  %s  account %s\n", orDash(batch.InstitutionName), orDash(batch.AccountID))
	fmt.Fprintf(&b, "Imported:     %d of %d\n", len(result.Pending), batch.TotalTransactions)
	fmt.Fprintf(&b, "Skipped:      %d already imported\n", len(result.DuplicatesSkipped))
	fmt.Fprintf(&b, "Needs review: %d\n", needsReview)
	writeSummary(&b, result.Summary)
	if !result.Categorized {
		b.WriteString("\n" + cli.FormatWarning("No active model; transactions were stored uncategorized."))
	}

	out(cmd, "%s\n", cli.RenderBox(cli.FolderIcon+" "+batch.Filename, b.String()))

	if len(result.DuplicatesSkipped) > 0 {
		out(cmd, "%s %s\n", cli.SubtleStyle.Render("Skipped FITIDs:"), strings.Join(result.DuplicatesSkipped, ", "))
	}
}

func writeSummary(b *strings.Builder, s model.ImportSummary) {
	fmt.Fprintf(b, "Debits:       %d totaling %s\n", s.DebitCount, s.DebitTotal.StringFixed(2))
	fmt.Fprintf(b, "Credits:      %d totaling %s", s.CreditCount, s.CreditTotal.StringFixed(2))
	if s.Balance.Valid {
		fmt.Fprintf(b, "\nBalance:      %s", s.Balance.Decimal.StringFixed(2))
	}
	if s.Available.Valid {
		fmt.Fprintf(b, "\nAvailable:    %s", s.Available.Decimal.StringFixed(2))
	}
}

func analyzeFile(cmd *cobra.Command, a *app, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	analysis, err := a.engine.Analyze(cmd.Context(), f)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Institution:  %s  account %s\n", orDash(analysis.Statement.InstitutionName), orDash(analysis.Statement.AccountID))
	fmt.Fprintf(&b, "Transactions: %d\n", analysis.Summary.Total)
	writeSummary(&b, analysis.Summary)
	out(cmd, "%s\n", cli.RenderBox(cli.ChartIcon+" "+filepath.Base(path)+" (dry run)", b.String()))

	tw := newTable(cmd.OutOrStdout(), "FITID", "Date", "Description", "Amount", "Prediction", "Confidence")
	for i, txn := range analysis.Statement.Transactions {
		pred := analysis.Predictions[i]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			txn.FITID,
			txn.Date.Format("2006-01-02"),
			txn.Description,
			txn.Amount.StringFixed(2),
			orDash(pred.Category),
			cli.FormatConfidence(pred.Confidence, pred.ConfidenceLevel))
	}
	flushTable(tw)

	if !analysis.Categorized {
		out(cmd, "%s\n", cli.FormatWarning("No active model; nothing was predicted."))
	}
	return nil
}
