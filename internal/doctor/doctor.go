// Package doctor provides health checks for a database and its migrations.
//
// The doctor command validates that migrations can be read and applied by
// checking the migration source, the database, and the recorded history.
//
// Example usage:
//
//	d := doctor.New(dbURL, source.Dir("migrations"))
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/pthm/pgup/pkg/migrator"
	"github.com/pthm/pgup/pkg/source"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

var (
	categoryStyle = lipgloss.NewStyle().Bold(true)
	hintStyle     = lipgloss.NewStyle().Faint(true)
	statusStyles  = map[Status]lipgloss.Style{
		StatusPass: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusWarn: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StatusFail: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// Check categories, in report order.
const (
	CategorySource   = "Migration Source"
	CategoryDatabase = "Database"
	CategoryState    = "Migration State"
)

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks.
	Category string

	// Name is a short identifier for the check.
	Name string

	Status  Status
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Find returns the first check with the given name.
func (r *Report) Find(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", categoryStyle.Render(cat))
		for _, check := range categories[cat] {
			symbol := statusStyles[check.Status].Render(check.Status.Symbol())
			_, _ = fmt.Fprintf(w, "  %s %s\n", symbol, check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      %s\n", hintStyle.Render("Fix: "+check.FixHint))
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Doctor checks whether the migrations in a source can be applied to a
// database. It never changes the database.
type Doctor struct {
	url  string
	src  source.Source
	opts []migrator.Option

	names []string
}

// New creates a new Doctor instance. The options are the ones the migrate
// command would use, so the same table and driver are inspected.
func New(url string, src source.Source, opts ...migrator.Option) *Doctor {
	return &Doctor{url: url, src: src, opts: opts}
}

// Run executes all health checks and returns a report. Problems found are
// reported as failed checks; the error is only for unexpected failures.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if !d.checkSource(report) {
		return report, nil
	}

	status, ok := d.checkDatabase(ctx, report)
	if !ok {
		return report, nil
	}

	d.checkMigrationState(status, report)
	return report, nil
}

// checkSource validates that every migration can be listed and read.
func (d *Doctor) checkSource(report *Report) bool {
	names, err := d.src.Names()
	if err != nil {
		report.AddCheck(CheckResult{
			Category: CategorySource,
			Name:     "source_readable",
			Status:   StatusFail,
			Message:  "Cannot list migrations",
			Details:  err.Error(),
			FixHint:  "Check migrations.dir points at a readable directory",
		})
		return false
	}
	d.names = names

	if len(names) == 0 {
		report.AddCheck(CheckResult{
			Category: CategorySource,
			Name:     "source_readable",
			Status:   StatusWarn,
			Message:  "No migrations found",
			FixHint:  "Run 'pgup new <name>' to create the first migration",
		})
		return true
	}

	report.AddCheck(CheckResult{
		Category: CategorySource,
		Name:     "source_readable",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Found %d migrations", len(names)),
	})

	var badNames, badContent []string
	for _, name := range names {
		if !utf8.ValidString(name) {
			badNames = append(badNames, fmt.Sprintf("%q", name))
			continue
		}
		content, err := d.src.Read(name)
		if err != nil || !utf8.Valid(content) {
			badContent = append(badContent, name)
		}
	}

	if len(badNames) > 0 {
		report.AddCheck(CheckResult{
			Category: CategorySource,
			Name:     "names_valid",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d migration names are not valid UTF-8", len(badNames)),
			Details:  strings.Join(badNames, "\n"),
			FixHint:  "Rename the files using UTF-8 names",
		})
	}

	if len(badContent) > 0 {
		report.AddCheck(CheckResult{
			Category: CategorySource,
			Name:     "contents_valid",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d migrations cannot be read as UTF-8 text", len(badContent)),
			Details:  strings.Join(badContent, "\n"),
			FixHint:  "Save the files as UTF-8",
		})
	}

	if len(badNames) == 0 && len(badContent) == 0 {
		report.AddCheck(CheckResult{
			Category: CategorySource,
			Name:     "contents_valid",
			Status:   StatusPass,
			Message:  "All migrations are valid UTF-8",
		})
	}

	return true
}

// checkDatabase reports whether the database can be reached and exists.
func (d *Doctor) checkDatabase(ctx context.Context, report *Report) (*migrator.Status, bool) {
	status, err := migrator.New(d.url, d.src, d.opts...).Status(ctx)
	if err != nil {
		check := CheckResult{
			Category: CategoryDatabase,
			Name:     "reachable",
			Status:   StatusFail,
			Message:  "Cannot inspect database",
			Details:  err.Error(),
		}
		switch {
		case migrator.IsInvalidURL(err):
			check.Message = "Database URL has no database name"
			check.FixHint = "Set database.url to postgres://host/<database>"
		case migrator.IsExistingConnectErr(err):
			check.Message = "Cannot connect to database"
			check.FixHint = "Check the server is running and the credentials are correct"
		case migrator.IsCurrentMigrationsErr(err):
			check.Category = CategoryState
			check.Name = "history_readable"
			check.Message = "Cannot read migration history"
			check.FixHint = "Check the user can SELECT from the bookkeeping table"
		}
		report.AddCheck(check)
		return nil, false
	}

	if !status.DatabaseExists {
		report.AddCheck(CheckResult{
			Category: CategoryDatabase,
			Name:     "exists",
			Status:   StatusWarn,
			Message:  "Database does not exist yet",
			FixHint:  "Run 'pgup migrate' to create it",
		})
		return status, true
	}

	report.AddCheck(CheckResult{
		Category: CategoryDatabase,
		Name:     "exists",
		Status:   StatusPass,
		Message:  "Database exists and is reachable",
	})
	return status, true
}

// checkMigrationState validates the bookkeeping table and history.
func (d *Doctor) checkMigrationState(status *migrator.Status, report *Report) {
	if status.DatabaseExists {
		if status.TableExists {
			report.AddCheck(CheckResult{
				Category: CategoryState,
				Name:     "table_exists",
				Status:   StatusPass,
				Message:  "Bookkeeping table exists",
				Details:  formatRecords(status.Records),
			})
		} else {
			report.AddCheck(CheckResult{
				Category: CategoryState,
				Name:     "table_exists",
				Status:   StatusWarn,
				Message:  "Bookkeeping table does not exist",
				Details:  "No migrations have been applied",
				FixHint:  "Run 'pgup migrate' to create it",
			})
		}
	}

	if status.Problem != nil {
		check := CheckResult{
			Category: CategoryState,
			Name:     "history_prefix",
			Status:   StatusFail,
			Message:  "Applied migrations do not match the migration source",
			Details:  status.Problem.Error(),
		}
		switch {
		case migrator.IsDeletedMigrations(status.Problem):
			check.Message = fmt.Sprintf("%d migrations were applied but only %d exist", len(status.Records), len(d.names))
			check.FixHint = "Restore the deleted migration files; applied migrations must never be removed"
		case migrator.IsMissingMigration(status.Problem):
			name, _ := migrator.MigrationName(status.Problem)
			check.Message = fmt.Sprintf("Migration %s is out of order with the applied history", name)
			check.FixHint = "Rename it so it sorts after every applied migration, or restore the original name"
		case migrator.IsInvalidMigrationPath(status.Problem):
			check.Message = "Migrations cannot be ordered"
		}
		report.AddCheck(check)
		return
	}

	report.AddCheck(CheckResult{
		Category: CategoryState,
		Name:     "history_prefix",
		Status:   StatusPass,
		Message:  "Applied migrations match the migration source",
	})

	if len(status.Pending) == 0 {
		report.AddCheck(CheckResult{
			Category: CategoryState,
			Name:     "pending",
			Status:   StatusPass,
			Message:  fmt.Sprintf("Up to date (%d applied)", len(status.Records)),
		})
		return
	}

	report.AddCheck(CheckResult{
		Category: CategoryState,
		Name:     "pending",
		Status:   StatusWarn,
		Message:  fmt.Sprintf("%d migrations pending", len(status.Pending)),
		Details:  strings.Join(status.Pending, "\n"),
		FixHint:  "Run 'pgup migrate' to apply them",
	})
}

func formatRecords(records []migrator.Record) string {
	if len(records) == 0 {
		return ""
	}
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = fmt.Sprintf("%d  %s  %s", r.ID, r.Created.Format(time.DateTime), r.Migration)
	}
	return strings.Join(lines, "\n")
}
