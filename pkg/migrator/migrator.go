package migrator

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pthm/pgup/pkg/source"
)

// Result describes what a run did.
type Result struct {
	// DatabaseCreated is true if the target database did not exist and was
	// created by this run.
	DatabaseCreated bool

	// Applied lists the migrations applied by this run, in order.
	Applied []string

	// Skipped is the number of migrations that had already been applied.
	Skipped int
}

// Migrator applies the migrations from a Source to a PostgreSQL database.
// It is safe to run on every application startup: migrations already
// recorded in the bookkeeping table are skipped, and all new migrations are
// applied in a single transaction together with their bookkeeping rows, so
// either all of them take effect or none do.
//
// The migration process:
//  1. Creates the database if it does not exist
//  2. Reads the names of applied migrations from the bookkeeping table
//  3. Verifies they are a prefix of the sorted source migrations
//  4. In one transaction, creates the bookkeeping table if history was
//     empty, then runs each new migration and records it
//  5. Commits
//
// Migrations are append-only. Deleting, renaming, or inserting a migration
// before one that has already run is reported as an error and never
// repaired.
type Migrator struct {
	url  string
	src  source.Source
	opts options
}

// New creates a Migrator for the database at url.
func New(url string, src source.Source, opts ...Option) *Migrator {
	return &Migrator{url: url, src: src, opts: newOptions(opts)}
}

// TableName returns the bookkeeping table name.
func (m *Migrator) TableName() string {
	return m.opts.table
}

// Run brings the database up to date. Running it again with the same
// migrations executes nothing beyond reading the history.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	if m.opts.dryRun != nil {
		return m.runDry(ctx)
	}

	created, err := ensureDatabase(ctx, &m.opts, m.url)
	if err != nil {
		return nil, err
	}
	res := &Result{DatabaseCreated: created}

	conn, err := m.opts.connect(ctx, m.url)
	if err != nil {
		return nil, &DatabaseError{Op: "connecting to database", Err: err}
	}
	defer func() { _ = conn.Close() }()

	history, err := readHistory(ctx, conn, m.opts.table)
	if err != nil {
		return nil, err
	}

	plan, err := m.plan(history)
	if err != nil {
		return nil, err
	}
	res.Skipped = plan.Applied

	pending := plan.Pending()
	if len(pending) == 0 {
		m.opts.log.Debug("Migrations up to date", zap.Int("applied", plan.Applied))
		return res, nil
	}

	m.opts.log.Info("Applying migrations",
		zap.Int("pending", len(pending)),
		zap.Int("applied", plan.Applied))

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, &DatabaseError{Op: "starting transaction", Err: err}
	}
	// Rollback is a no-op once Commit has succeeded.
	defer func() { _ = tx.Rollback() }()

	if len(history) == 0 {
		if _, err := tx.ExecContext(ctx, createHistoryTableSQL(m.opts.table)); err != nil {
			return nil, &DatabaseError{Op: "creating table " + m.opts.table, Err: err}
		}
	}

	for _, name := range pending {
		content, err := m.read(name)
		if err != nil {
			return nil, err
		}

		m.opts.log.Debug("Executing migration", zap.String("migration", name))
		if _, err := tx.ExecContext(ctx, content); err != nil {
			return nil, &DatabaseError{Op: "applying migration " + name, Err: err}
		}
		if _, err := tx.ExecContext(ctx, insertHistorySQL(m.opts.table), name); err != nil {
			return nil, &DatabaseError{Op: "recording migration " + name, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &DatabaseError{Op: "committing migrations", Err: err}
	}

	res.Applied = pending
	for _, name := range pending {
		m.opts.log.Info("Applied migration", zap.String("migration", name))
	}
	return res, nil
}

// plan lists the source and reconciles it against history.
func (m *Migrator) plan(history []string) (*Plan, error) {
	names, err := m.src.Names()
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	return Reconcile(history, names)
}

// read loads a migration and checks it is valid UTF-8.
func (m *Migrator) read(name string) (string, error) {
	content, err := m.src.Read(name)
	if err != nil {
		return "", &SourceError{Name: name, Err: err}
	}
	if !utf8.Valid(content) {
		return "", &MigrationError{Kind: InvalidContent, Name: name}
	}
	return string(content), nil
}

// Status describes the migration state of a database without changing it.
type Status struct {
	// DatabaseExists is false if the target database has not been created.
	DatabaseExists bool

	// TableExists is false until the first migration has been applied.
	TableExists bool

	// Records holds the bookkeeping rows in application order.
	Records []Record

	// Available lists every source migration in application order.
	Available []string

	// Pending lists the migrations a run would apply. Empty when Problem is
	// set.
	Pending []string

	// Problem is the reconciliation error a run would fail with, such as
	// deleted or out-of-order migrations.
	Problem error
}

// Status reports applied and pending migrations. It never creates the
// database or the bookkeeping table.
func (m *Migrator) Status(ctx context.Context) (*Status, error) {
	exists, err := databaseExists(ctx, m.opts.connect, m.url)
	if err != nil {
		return nil, err
	}
	status := &Status{DatabaseExists: exists}

	var history []string
	if exists {
		conn, err := m.opts.connect(ctx, m.url)
		if err != nil {
			return nil, &DatabaseError{Op: "connecting to database", Err: err}
		}
		defer func() { _ = conn.Close() }()

		records, tableExists, err := ReadRecords(ctx, conn, m.opts.table)
		if err != nil {
			return nil, err
		}
		status.TableExists = tableExists
		status.Records = records
		for _, r := range records {
			history = append(history, r.Migration)
		}
	}

	names, err := m.src.Names()
	if err != nil {
		return nil, &SourceError{Err: err}
	}

	plan, err := Reconcile(history, names)
	if err != nil {
		status.Problem = err
		// Still report what is available, sorted, for display.
		if sorted, sortErr := Reconcile(nil, names); sortErr == nil {
			status.Available = sorted.Migrations
		}
		return status, nil
	}
	status.Available = plan.Migrations
	status.Pending = plan.Pending()
	return status, nil
}

// Pending returns the migrations a run would apply.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status.Problem != nil {
		return nil, status.Problem
	}
	return status.Pending, nil
}

// describe formats a plan summary for logs and dry-run headers.
func describe(plan *Plan) string {
	return fmt.Sprintf("%d applied, %d pending", plan.Applied, len(plan.Pending()))
}
