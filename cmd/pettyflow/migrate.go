package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fintrax/pettyflow/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures the local database has all the required tables,
the seeded chart of accounts and the default accounting rules.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	slog.Info("running database migrations",
		"target_version", storage.ExpectedSchemaVersion)

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed")
	return nil
}
