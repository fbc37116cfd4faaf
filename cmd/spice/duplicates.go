package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/dedup"
)

func duplicatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "duplicates",
		Aliases: []string{"dupes"},
		Short:   "Find and merge duplicate pending transactions",
	}

	cmd.AddCommand(duplicatesFindCmd(opts))
	cmd.AddCommand(duplicatesMergeCmd(opts))

	return cmd
}

func duplicatesFindCmd(opts *rootOptions) *cobra.Command {
	var (
		days    int
		scope   string
		batchID int64
		owner   int64
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Group pending transactions that look like duplicates",
		Long: `Group still-pending transactions whose amounts match within a cent,
whose dates are within --days of each other and whose descriptions are
similar. Matches chain: if A matches B and B matches C, all three are
reported together.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if scope == "" {
				scope = a.cfg.Dedup.Scope
			}
			q := dedup.Query{Scope: dedup.Scope(scope), BatchID: batchID, OwnerID: owner}
			if q.Scope == dedup.ScopeOwner && q.OwnerID == 0 {
				q.OwnerID = a.cfg.Import.Owner
			}

			groups, err := a.detector.FindDuplicates(cmd.Context(), q, days)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				out(cmd, "%s\n", cli.FormatSuccess("No duplicates found"))
				return nil
			}

			for i, g := range groups {
				out(cmd, "%s\n", cli.BoldStyle.Render(fmt.Sprintf("Group %d: %s  %s (%d transactions)",
					i+1, g.Amount.StringFixed(2), g.Description, len(g.Transactions))))
				printTransactions(cmd, g.Transactions)
				out(cmd, "\n")
			}
			out(cmd, "%s\n", cli.FormatInfo("Merge with: spice duplicates merge <keep-id> <remove-id>..."))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", -1, "maximum days apart (default dedup.threshold_days)")
	cmd.Flags().StringVar(&scope, "scope", "", "global, batch or owner (default dedup.scope)")
	cmd.Flags().Int64Var(&batchID, "batch", 0, "batch id for batch scope")
	cmd.Flags().Int64Var(&owner, "owner", 0, "owner id for owner scope (default import.owner)")

	return cmd
}

func duplicatesMergeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <keep> <remove...>",
		Short: "Keep one transaction and delete its duplicates",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "transaction")
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, found, err := a.detector.Merge(cmd.Context(), ids[0], ids[1:])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("transaction %d not found", ids[0])
			}

			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Kept %d (%s), removed %d",
				result.Kept.ID, result.Kept.Description, result.Removed)))
			for _, batchID := range result.CompletedBatches {
				out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("%s Batch %d completed", cli.CheckIcon, batchID)))
			}
			return nil
		},
	}
}
