package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func checkpointCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete database checkpoints.

Checkpoints are taken automatically before merges and batch deletions. Take
one by hand before anything else you may want to undo.`,
		Example: `  spice checkpoint create --tag pre-2024-import
  spice checkpoint list
  spice checkpoint restore pre-2024-import
  spice checkpoint delete old-checkpoint`,
	}

	cmd.AddCommand(createCheckpointCmd(opts))
	cmd.AddCommand(listCheckpointsCmd(opts))
	cmd.AddCommand(restoreCheckpointCmd(opts))
	cmd.AddCommand(deleteCheckpointCmd(opts))

	return cmd
}

// withCheckpoints opens the database and hands fn a checkpoint manager.
func withCheckpoints(ctx context.Context, opts *rootOptions, fn func(*storage.CheckpointManager) error) error {
	store, err := initStorage(ctx, opts.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	manager, err := store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return fn(manager)
}

func findCheckpoint(ctx context.Context, manager *storage.CheckpointManager, id string) (*storage.CheckpointInfo, error) {
	checkpoints, err := manager.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for i := range checkpoints {
		if checkpoints[i].ID == id {
			return &checkpoints[i], nil
		}
	}
	return nil, fmt.Errorf("checkpoint %q not found", id)
}

func createCheckpointCmd(opts *rootOptions) *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd.Context(), opts, func(manager *storage.CheckpointManager) error {
				info, err := manager.Create(cmd.Context(), tag, description)
				if err != nil {
					return fmt.Errorf("failed to create checkpoint: %w", err)
				}

				out(cmd, "%s Created checkpoint %s (%s)\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(info.ID),
					formatFileSize(info.FileSize))
				if info.Description != "" {
					out(cmd, "  Description: %s\n", info.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "checkpoint name (generated if empty)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description of the checkpoint")

	return cmd
}

func listCheckpointsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd.Context(), opts, func(manager *storage.CheckpointManager) error {
				checkpoints, err := manager.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list checkpoints: %w", err)
				}
				if len(checkpoints) == 0 {
					out(cmd, "%s\n", cli.SubtleStyle.Render("No checkpoints found."))
					return nil
				}

				tw := newTable(cmd.OutOrStdout(), "NAME", "CREATED", "SIZE", "BATCHES", "PENDING", "JOBS", "TYPE")
				for _, cp := range checkpoints {
					typeLabel := "manual"
					if cp.IsAuto {
						typeLabel = "auto"
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						cli.InfoStyle.Render(cp.ID),
						formatRelativeTime(cp.CreatedAt),
						formatFileSize(cp.FileSize),
						cp.Batches,
						cp.PendingTransactions,
						cp.TrainingJobs,
						cli.SubtleStyle.Render(typeLabel))
				}
				flushTable(tw)
				return nil
			})
		},
	}
}

func restoreCheckpointCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Restore the database from a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd.Context(), opts, func(manager *storage.CheckpointManager) error {
				info, err := findCheckpoint(cmd.Context(), manager, id)
				if err != nil {
					return err
				}

				if !force {
					out(cmd, "  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
					if info.Description != "" {
						out(cmd, "  Description: %s\n", info.Description)
					}
					reader := cli.NewNonBlockingReader(cmd.InOrStdin())
					ok, err := reader.Confirm(cmd.Context(), cmd.OutOrStdout(),
						fmt.Sprintf("Replace the current database with checkpoint %s?", id))
					if err != nil {
						return err
					}
					if !ok {
						out(cmd, "%s\n", cli.SubtleStyle.Render("Restore cancelled."))
						return nil
					}
				}

				if err := manager.Restore(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to restore checkpoint: %w", err)
				}
				out(cmd, "%s Restored from checkpoint %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(id))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

func deleteCheckpointCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd.Context(), opts, func(manager *storage.CheckpointManager) error {
				info, err := findCheckpoint(cmd.Context(), manager, id)
				if err != nil {
					return err
				}

				if !force {
					reader := cli.NewNonBlockingReader(cmd.InOrStdin())
					ok, err := reader.Confirm(cmd.Context(), cmd.OutOrStdout(),
						fmt.Sprintf("Permanently delete checkpoint %s (%s)?", id, formatFileSize(info.FileSize)))
					if err != nil {
						return err
					}
					if !ok {
						out(cmd, "%s\n", cli.SubtleStyle.Render("Deletion cancelled."))
						return nil
					}
				}

				if err := manager.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to delete checkpoint: %w", err)
				}
				out(cmd, "%s Deleted checkpoint %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(id))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

func formatRelativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		if minutes := int(duration.Minutes()); minutes != 1 {
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return "1 minute ago"
	case duration < 24*time.Hour:
		if hours := int(duration.Hours()); hours != 1 {
			return fmt.Sprintf("%d hours ago", hours)
		}
		return "1 hour ago"
	case duration < 7*24*time.Hour:
		if days := int(duration.Hours() / 24); days != 1 {
			return fmt.Sprintf("%d days ago", days)
		}
		return "yesterday"
	default:
		return t.Format("2006-01-02 15:04")
	}
}
