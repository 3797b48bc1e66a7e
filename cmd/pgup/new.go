package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pthm/pgup/internal/cli"
	"github.com/pthm/pgup/pkg/source"
)

var newDir string

var newCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create the next migration file",
	Long: `Create an empty migration file named with the next sequence number, for
example 004_add_users.sql. Prompts for the name when none is given.`,
	Example: `  # Create migrations/004_add_users.sql
  pgup new add_users`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveString(newDir, cfg.Migrations.Dir)

		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			if !isatty.IsTerminal(os.Stdin.Fd()) {
				return cli.ConfigError("migration name is required", nil)
			}
			if err := promptName(&name); err != nil {
				return cli.GeneralError("reading migration name", err)
			}
		}

		path, err := createMigration(dir, name)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
		}
		return nil
	},
}

func init() {
	newCmd.Flags().StringVar(&newDir, "dir", "", "directory containing migration files")
}

func promptName(name *string) error {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Migration name").
			Placeholder("add_users_table").
			Value(name).
			Validate(func(s string) error {
				if slug(s) == "" {
					return errors.New("name must contain a letter or digit")
				}
				return nil
			}),
	)).Run()
}

// createMigration writes an empty migration numbered after the existing
// ones in dir, creating dir if needed.
func createMigration(dir, name string) (string, error) {
	if slug(name) == "" {
		return "", cli.ConfigError(fmt.Sprintf("invalid migration name %q", name), nil)
	}

	var existing []string
	if _, err := os.Stat(dir); err == nil {
		if existing, err = source.Dir(dir).Names(); err != nil {
			return "", cli.SourceError("listing migrations", err)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", cli.GeneralError("creating migrations directory", err)
	}

	file := nextMigrationName(existing, name)
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", cli.GeneralError("creating migration", err)
	}
	_, werr := fmt.Fprintf(f, "-- %s\n", file)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", cli.GeneralError("writing migration", werr)
	}
	return path, nil
}

// nextMigrationName returns NNN_<slug>.sql where NNN is one more than the
// highest numeric prefix among existing, zero-padded to at least three
// digits and to the widest existing prefix so names keep sorting in order.
func nextMigrationName(existing []string, name string) string {
	next, width := 0, 3
	for _, e := range existing {
		digits := leadingDigits(e)
		if digits == "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
		if len(digits) > width {
			width = len(digits)
		}
	}
	return fmt.Sprintf("%0*d_%s.sql", width, next, slug(name))
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// slug lowercases name and collapses every run of other characters to a
// single underscore.
func slug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSuffix(name, ".sql")) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
