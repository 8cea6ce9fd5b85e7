package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/chrisdamba/foodmarket/internal/repositories/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the postgres schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd, migrate.Up) },
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd, migrate.Down) },
}

func init() {
	migrateUpCmd.Flags().Int("max", 0, "Maximum number of migrations to apply (0 applies all)")
	migrateDownCmd.Flags().Int("max", 1, "Maximum number of migrations to roll back (0 rolls back all)")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, direction migrate.MigrationDirection) error {
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("migrate: postgres dsn is not configured")
	}
	max, _ := cmd.Flags().GetInt("max")

	pool, err := postgres.Open(cmd.Context(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	n, err := postgres.Migrate(db, direction, max)
	if err != nil {
		return err
	}
	if direction == migrate.Down {
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migrations\n", n)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
	}
	return nil
}
