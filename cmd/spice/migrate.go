package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on startup as well; this one is useful for
preparing a database ahead of time or checking its version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dbPath := config.ExpandPath(opts.cfg.Database.Path)

			store, err := storage.NewSQLiteStorage(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			current, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			if status {
				out(cmd, "%s\n", cli.FormatTitle("Database Migration Status"))
				out(cmd, "  Database: %s\n", dbPath)
				out(cmd, "  Current version: %d\n", current)
				out(cmd, "  Latest version:  %d\n", storage.ExpectedSchemaVersion)
				if current < storage.ExpectedSchemaVersion {
					out(cmd, "%s\n", cli.FormatWarning("Run 'spice migrate' to apply pending migrations"))
				}
				return nil
			}

			slog.Info("Running database migrations",
				"database", dbPath,
				"from", current,
				"to", storage.ExpectedSchemaVersion)

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			out(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Database at schema version %d", storage.ExpectedSchemaVersion)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show the current schema version without migrating")

	return cmd
}
