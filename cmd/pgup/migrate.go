package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/pgup/internal/cli"
	"github.com/pthm/pgup/pkg/migrator"
)

var (
	migrateFlags  dbFlags
	migrateDryRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Long: `Create the database if it does not exist and apply every migration that
has not run yet. All pending migrations are applied in a single transaction.`,
	Example: `  # Apply migrations from ./migrations
  pgup migrate --db postgres://localhost/mydb

  # Preview the SQL without applying it
  pgup migrate --db postgres://localhost/mydb --dry-run

  # Use a different directory and bookkeeping table
  pgup migrate --db postgres://localhost/mydb --dir db/migrations --table schema_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(migrateFlags.db)
		if err != nil {
			return err
		}

		opts := migrateFlags.options()
		dryRun := resolveBool(migrateDryRun, cfg.Migrate.DryRun)
		if dryRun {
			opts = append(opts, migrator.WithDryRun(cmd.OutOrStdout()))
			if !quiet {
				fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
				fmt.Fprintln(os.Stderr, "")
			}
		}

		res, err := migrator.New(dsn, migrateFlags.source(), opts...).Run(cmd.Context())
		if err != nil {
			return cli.MigratorError("migration failed", err)
		}

		if dryRun || quiet {
			return nil
		}
		printResult(cmd, dsn, res)
		return nil
	},
}

func init() {
	migrateFlags.register(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "output migration SQL without applying")
}

func printResult(cmd *cobra.Command, dsn string, res *migrator.Result) {
	w := cmd.OutOrStdout()
	if res.DatabaseCreated {
		_, name, _ := migrator.SplitURL(dsn)
		fmt.Fprintf(w, "Created database %s\n", name)
	}
	if len(res.Applied) == 0 {
		fmt.Fprintf(w, "Already up to date (%d migrations applied)\n", res.Skipped)
		return
	}
	fmt.Fprintf(w, "Applied %d migrations:\n", len(res.Applied))
	for _, name := range res.Applied {
		fmt.Fprintf(w, "  %s\n", name)
	}
}
