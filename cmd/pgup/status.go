package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm/pgup/internal/cli"
	"github.com/pthm/pgup/pkg/migrator"
)

var statusFlags dbFlags

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Long:  `Show which migrations have been applied and which are pending. Nothing is created or changed.`,
	Example: `  # Check status
  pgup status --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(statusFlags.db)
		if err != nil {
			return err
		}

		m := migrator.New(dsn, statusFlags.source(), statusFlags.options()...)
		s, err := m.Status(cmd.Context())
		if err != nil {
			return cli.MigratorError("getting status", err)
		}

		printStatus(cmd, m.TableName(), s)

		if s.Problem != nil {
			return cli.MigrationStateError("migration history does not match the migration files", s.Problem)
		}
		return nil
	},
}

func init() {
	statusFlags.register(statusCmd)
}

func printStatus(cmd *cobra.Command, table string, s *migrator.Status) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	present := func(ok bool) string {
		if ok {
			return "present"
		}
		return "missing"
	}

	fmt.Fprintf(w, "Database:\t%s\n", present(s.DatabaseExists))
	fmt.Fprintf(w, "Bookkeeping table:\t%s (%s)\n", table, present(s.TableExists))
	fmt.Fprintf(w, "Applied:\t%d\n", len(s.Records))
	fmt.Fprintf(w, "Pending:\t%d\n", len(s.Pending))

	if len(s.Records) > 0 || len(s.Pending) > 0 {
		fmt.Fprintln(w)
	}
	for _, r := range s.Records {
		fmt.Fprintf(w, "  applied\t%s\t%s\n", r.Migration, r.Created.Format(time.DateTime))
	}
	for _, name := range s.Pending {
		fmt.Fprintf(w, "  pending\t%s\t\n", name)
	}

	if s.Problem != nil {
		fmt.Fprintf(w, "\nProblem: %v\n", s.Problem)
	}
}
