package migrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lib/pq"
)

// runDry reconciles like Run but writes the SQL it would execute instead of
// executing it. A missing database is reported and treated as empty.
func (m *Migrator) runDry(ctx context.Context) (*Result, error) {
	exists, err := databaseExists(ctx, m.opts.connect, m.url)
	if err != nil {
		return nil, err
	}

	var history []string
	if exists {
		conn, err := m.opts.connect(ctx, m.url)
		if err != nil {
			return nil, &DatabaseError{Op: "connecting to database", Err: err}
		}
		defer func() { _ = conn.Close() }()

		history, err = readHistory(ctx, conn, m.opts.table)
		if err != nil {
			return nil, err
		}
	}

	plan, err := m.plan(history)
	if err != nil {
		return nil, err
	}

	pending := plan.Pending()
	contents := make([]string, len(pending))
	for i, name := range pending {
		if contents[i], err = m.read(name); err != nil {
			return nil, err
		}
	}

	var dbName string
	if !exists {
		if _, dbName, err = SplitURL(m.url); err != nil {
			return nil, err
		}
	}

	m.outputDryRun(m.opts.dryRun, dbName, len(history) == 0, plan, contents)
	return &Result{Skipped: plan.Applied}, nil
}

// outputDryRun writes the statements a run would execute to w.
func (m *Migrator) outputDryRun(w io.Writer, missingDB string, emptyHistory bool, plan *Plan, contents []string) {
	pending := plan.Pending()

	_, _ = fmt.Fprintf(w, "-- pgup migration (dry-run)\n")
	_, _ = fmt.Fprintf(w, "-- Bookkeeping table: %s\n", m.opts.table)
	_, _ = fmt.Fprintf(w, "-- Migrations: %s\n", describe(plan))
	_, _ = fmt.Fprintf(w, "\n")

	if missingDB != "" {
		_, _ = fmt.Fprintf(w, "-- Database does not exist and would be created:\n")
		_, _ = fmt.Fprintf(w, "-- CREATE DATABASE %s;\n\n", pq.QuoteIdentifier(missingDB))
	}

	if len(pending) == 0 {
		_, _ = fmt.Fprintf(w, "-- Nothing to apply.\n")
		return
	}

	_, _ = fmt.Fprintf(w, "BEGIN;\n\n")

	if emptyHistory {
		writeSection(w, "Bookkeeping Table")
		_, _ = fmt.Fprintf(w, "%s;\n\n", createHistoryTableSQL(m.opts.table))
	}

	for i, name := range pending {
		writeSection(w, "Migration "+name)
		_, _ = fmt.Fprintf(w, "%s\n\n", strings.TrimRight(contents[i], "\n"))
		_, _ = fmt.Fprintf(w, "INSERT INTO %s (migration) VALUES (%s);\n\n",
			pq.QuoteIdentifier(m.opts.table), pq.QuoteLiteral(name))
	}

	_, _ = fmt.Fprintf(w, "COMMIT;\n")
}

func writeSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "-- ============================================================\n")
	_, _ = fmt.Fprintf(w, "-- %s\n", title)
	_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
}
