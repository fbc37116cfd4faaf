package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func batchesCmd(opts *rootOptions) *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:     "batches",
		Aliases: []string{"batch"},
		Short:   "List and manage import batches",
	}
	cmd.PersistentFlags().Int64Var(&owner, "owner", 0, "owner id (default import.owner)")

	cmd.AddCommand(batchesListCmd(opts, &owner))
	cmd.AddCommand(batchesShowCmd(opts, &owner))
	cmd.AddCommand(batchesRenameCmd(opts, &owner))
	cmd.AddCommand(batchesCancelCmd(opts, &owner))
	cmd.AddCommand(batchesFailCmd(opts, &owner))
	cmd.AddCommand(batchesDeleteCmd(opts, &owner))

	return cmd
}

func batchesListCmd(opts *rootOptions, owner *int64) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := model.BatchStatus(strings.ToUpper(status))
			if filter != "" && !filter.IsValid() {
				return fmt.Errorf("unknown batch status %q", status)
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			batches, err := a.engine.ListBatches(cmd.Context(), *owner, filter, limit)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				out(cmd, "%s\n", cli.FormatInfo("No batches found. Use 'spice import' to add one."))
				return nil
			}

			tw := newTable(cmd.OutOrStdout(), "ID", "File", "Institution", "Status", "Reviewed", "Period", "Imported")
			for _, b := range batches {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					b.ID, b.Filename, orDash(b.InstitutionName), cli.FormatBatchStatus(b.Status),
					b.ProcessedTransactions, b.TotalTransactions, formatPeriod(b),
					b.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			flushTable(tw)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only batches in this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of batches")

	return cmd
}

func batchesShowCmd(opts *rootOptions, owner *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch>",
		Short: "Show a batch and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.engine.GetBatch(cmd.Context(), *owner, batchID)
			if err != nil {
				return fmt.Errorf("failed to get batch %d: %w", batchID, err)
			}
			txns, err := a.engine.ReviewQueue(cmd.Context(), *owner, batchID, false)
			if err != nil {
				return err
			}

			out(cmd, "%s\n", cli.RenderBox(fmt.Sprintf("Batch %d", batch.ID), describeBatch(batch)))
			printTransactions(cmd, txns)
			return nil
		},
	}
}

func batchesRenameCmd(opts *rootOptions, owner *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <batch> <institution>",
		Short: "Change the institution name shown for a batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			name := args[1]
			batch, err := a.engine.UpdateBatch(cmd.Context(), *owner, batchID, engine.BatchUpdate{InstitutionName: &name})
			if err != nil {
				return err
			}
			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Batch %d institution is now %q", batch.ID, batch.InstitutionName)))
			return nil
		},
	}
}

func batchesCancelCmd(opts *rootOptions, owner *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batch>",
		Short: "Cancel a batch that is still under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.engine.Cancel(cmd.Context(), *owner, batchID)
			if err != nil {
				return err
			}
			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Batch %d is %s", batch.ID, batch.Status)))
			return nil
		},
	}
}

func batchesFailCmd(opts *rootOptions, owner *int64) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "fail <batch>",
		Short: "Mark a stuck batch as failed",
		Long: `Mark a batch that never left PROCESSING, for example after a crash,
as FAILED so it no longer shows up as in progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.engine.Fail(cmd.Context(), *owner, batchID, message)
			if err != nil {
				return err
			}
			out(cmd, "%s\n", cli.FormatWarning(fmt.Sprintf("Batch %d is %s", batch.ID, batch.Status)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "marked failed by user", "error message stored on the batch")

	return cmd
}

func batchesDeleteCmd(opts *rootOptions, owner *int64) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <batch>",
		Short: "Delete a batch and all of its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.engine.GetBatch(cmd.Context(), *owner, batchID)
			if err != nil {
				return fmt.Errorf("failed to get batch %d: %w", batchID, err)
			}

			if !force {
				reader := cli.NewNonBlockingReader(cmd.InOrStdin())
				question := fmt.Sprintf("Delete batch %d (%s) and its %d transactions?", batch.ID, batch.Filename, batch.TotalTransactions)
				ok, err := reader.Confirm(cmd.Context(), cmd.OutOrStdout(), question)
				if err != nil {
					return err
				}
				if !ok {
					out(cmd, "%s\n", cli.SubtleStyle.Render("Deletion cancelled."))
					return nil
				}
			}

			found, err := a.engine.DeleteBatch(cmd.Context(), *owner, batchID)
			if err != nil {
				return err
			}
			if !found {
				out(cmd, "%s\n", cli.FormatWarning(fmt.Sprintf("Batch %d no longer exists", batchID)))
				return nil
			}
			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Deleted batch %d", batchID)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")

	return cmd
}

func describeBatch(b *model.ImportBatch) string {
	var s strings.Builder
	fmt.Fprintf(&s, "File:        %s\n", b.Filename)
	fmt.Fprintf(&s, "Status:      %s\n", cli.FormatBatchStatus(b.Status))
	fmt.Fprintf(&s, "Institution: %s\n", orDash(b.InstitutionName))
	fmt.Fprintf(&s, "Account:     %s\n", orDash(b.AccountID))
	fmt.Fprintf(&s, "Period:      %s\n", formatPeriod(*b))
	if b.ClosingBalance.Valid {
		fmt.Fprintf(&s, "Balance:     %s\n", b.ClosingBalance.Decimal.StringFixed(2))
	}
	fmt.Fprintf(&s, "Reviewed:    %d of %d", b.ProcessedTransactions, b.TotalTransactions)
	if b.ErrorMessage != "" {
		fmt.Fprintf(&s, "\nError:       %s", cli.ErrorStyle.Render(b.ErrorMessage))
	}
	return s.String()
}

func formatPeriod(b model.ImportBatch) string {
	if b.PeriodStart == nil || b.PeriodEnd == nil {
		return "-"
	}
	return b.PeriodStart.Format("2006-01-02") + " → " + b.PeriodEnd.Format("2006-01-02")
}

func printTransactions(cmd *cobra.Command, txns []model.PendingTransaction) {
	if len(txns) == 0 {
		out(cmd, "%s\n", cli.FormatInfo("No transactions."))
		return
	}
	tw := newTable(cmd.OutOrStdout(), "ID", "Date", "Description", "Amount", "Predicted", "Confidence", "Status", "Category")
	for _, t := range txns {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date.Format("2006-01-02"), t.Description, t.Amount.StringFixed(2),
			orDash(t.PredictedCategory), cli.FormatConfidence(t.ConfidenceScore, t.ConfidenceLevel),
			cli.FormatReviewStatus(t.ReviewStatus), orDash(t.UserCategory))
	}
	flushTable(tw)
}
