package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/pgup/internal/cli"
	"github.com/pthm/pgup/internal/doctor"
)

var (
	doctorFlags   dbFlags
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long:  `Run health checks on the migration files, the database, and the recorded migration history.`,
	Example: `  # Run health checks
  pgup doctor --db postgres://localhost/mydb

  # Run with verbose output
  pgup doctor --db postgres://localhost/mydb --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verboseFlag := resolveBool(doctorVerbose, cfg.Doctor.Verbose)

		dsn, err := resolveDSN(doctorFlags.db)
		if err != nil {
			return err
		}

		if !quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "pgup doctor - Health Check")
		}

		d := doctor.New(dsn, doctorFlags.source(), doctorFlags.options()...)
		report, err := d.Run(cmd.Context())
		if err != nil {
			return cli.GeneralError("running doctor", err)
		}

		report.Print(cmd.OutOrStdout(), verboseFlag)

		if report.HasErrors() {
			return cli.GeneralError("health checks failed", nil)
		}
		return nil
	},
}

func init() {
	doctorFlags.register(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "show detailed output")
}
