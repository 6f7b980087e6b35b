package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutorcenter/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE:  withDB(db.Migrate),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	Args:  cobra.NoArgs,
	RunE:  withDB(db.MigrateDown),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every migration",
	Args:  cobra.NoArgs,
	RunE:  withDB(db.MigrationStatus),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

var errNeedsPostgres = errors.New("migrate needs STORE=postgres")

func withDB(fn func(context.Context, *sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if cfg.Store != "postgres" {
			return errNeedsPostgres
		}
		sqlDB, err := db.Open(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = sqlDB.Close() }()
		if err := fn(cmd.Context(), sqlDB); err != nil {
			return err
		}
		lg.Base.Info("migrate " + cmd.Name() + " done")
		return nil
	}
}
