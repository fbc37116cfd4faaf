package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/tui"
	"github.com/Veraticus/spice-ledger/internal/tui/themes"
)

func reviewCmd(opts *rootOptions) *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review predicted categories",
		Long: `Approve, change or reject the category predicted for each imported
transaction. A batch completes on its own once nothing in it is pending.`,
	}
	cmd.PersistentFlags().Int64Var(&owner, "owner", 0, "owner id (default import.owner)")

	cmd.AddCommand(reviewListCmd(opts, &owner))
	cmd.AddCommand(reviewSetCmd(opts, &owner))
	cmd.AddCommand(reviewDiscardCmd(opts, &owner))
	cmd.AddCommand(reviewTUICmd(opts, &owner))

	return cmd
}

func reviewListCmd(opts *rootOptions, owner *int64) *cobra.Command {
	var needsReview bool

	cmd := &cobra.Command{
		Use:   "list <batch>",
		Short: "List a batch's transactions by date",
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

			txns, err := a.engine.ReviewQueue(cmd.Context(), *owner, batchID, needsReview)
			if err != nil {
				return err
			}
			printTransactions(cmd, txns)
			return nil
		},
	}

	cmd.Flags().BoolVar(&needsReview, "needs-review", false, "only pending low-confidence transactions")

	return cmd
}

func reviewSetCmd(opts *rootOptions, owner *int64) *cobra.Command {
	var category, status, note string

	cmd := &cobra.Command{
		Use:   "set <batch> <transaction>",
		Short: "Resolve one transaction",
		Example: `  spice review set 3 41 --status approved
  spice review set 3 42 --category Groceries --status modified --note "weekly shop"
  spice review set 3 43 --status rejected`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "batch/transaction")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, found, err := a.engine.Review(cmd.Context(), *owner, model.ReviewDecision{
				BatchID:       ids[0],
				TransactionID: ids[1],
				Category:      category,
				Status:        model.ParseReviewStatus(status),
				Notes:         note,
			})
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("transaction %d not found in batch %d", ids[1], ids[0])
			}

			txn := outcome.Transaction
			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("%s %s → %s",
				txn.ReviewStatus, txn.Description, orDash(txn.FinalCategory()))))
			if outcome.Completed {
				out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("%s Batch %d completed", cli.CheckIcon, outcome.Batch.ID)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "final category (defaults to the prediction when approving)")
	cmd.Flags().StringVarP(&status, "status", "s", "approved", "approved, modified or rejected")
	cmd.Flags().StringVarP(&note, "note", "n", "", "free-text note")

	return cmd
}

func reviewDiscardCmd(opts *rootOptions, owner *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <batch> <transaction>",
		Short: "Remove one transaction from a batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "batch/transaction")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			found, err := a.engine.Discard(cmd.Context(), *owner, ids[0], ids[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("transaction %d not found in batch %d", ids[1], ids[0])
			}
			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Discarded transaction %d", ids[1])))
			return nil
		},
	}
}

func reviewTUICmd(opts *rootOptions, owner *int64) *cobra.Command {
	var needsReview, plain bool

	cmd := &cobra.Command{
		Use:   "tui <batch>",
		Short: "Review a batch interactively",
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

			if _, err := a.engine.GetBatch(cmd.Context(), *owner, batchID); err != nil {
				return fmt.Errorf("failed to get batch %d: %w", batchID, err)
			}

			tuiOpts := []tui.Option{tui.WithOwner(*owner), tui.WithNeedsReviewOnly(needsReview)}
			if plain {
				tuiOpts = append(tuiOpts, tui.WithTheme(themes.Plain))
			}
			summary, err := tui.Run(cmd.Context(), a.engine, batchID, tuiOpts...)
			if err != nil {
				return err
			}

			out(cmd, "%s\n", cli.FormatInfo(fmt.Sprintf("Approved %d, modified %d, rejected %d, %d left",
				summary.Approved, summary.Modified, summary.Rejected, summary.Remaining)))
			if summary.Completed {
				out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Batch %d completed", batchID)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&needsReview, "needs-review", false, "start with only low-confidence transactions")
	cmd.Flags().BoolVar(&plain, "plain", false, "use the colorless theme (also chosen when NO_COLOR is set)")

	return cmd
}
