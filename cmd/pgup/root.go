package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pthm/pgup/internal/cli"
	"github.com/pthm/pgup/pkg/migrator"
	"github.com/pthm/pgup/pkg/source"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string
	log        = zap.NewNop()

	// Persistent flags
	cfgFile   string
	logLevel  string
	logFormat string
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "pgup",
	Short: "Append-only SQL migrations for PostgreSQL",
	Long: `pgup - Append-only SQL migrations for PostgreSQL

pgup creates the target database if it does not exist, then applies every
migration file that has not run yet, in name order, inside one transaction.
Applied migrations are recorded in a bookkeeping table and never run twice.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help/completion/version commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}

		cfg.Log.Level = resolveString(logLevel, cfg.Log.Level)
		cfg.Log.Format = resolveString(logFormat, cfg.Log.Format)
		if quiet {
			cfg.Log.Level = "error"
		}

		log, err = cfg.Logger()
		if err != nil {
			return cli.ConfigError("configuring logging", err)
		}
		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

// Command group IDs
const (
	groupMigrations = "migrations"
	groupUtility    = "utility"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover pgup.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (auto, console, json, logfmt)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupMigrations, Title: "Migrations:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	migrateCmd.GroupID = groupMigrations
	statusCmd.GroupID = groupMigrations
	doctorCmd.GroupID = groupMigrations
	newCmd.GroupID = groupMigrations
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(newCmd)

	configCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = log.Sync()
	if err != nil {
		cli.ExitWithError(err)
	}
}

// dbFlags are the connection flags shared by commands that touch the
// database.
type dbFlags struct {
	db     string
	dir    string
	table  string
	driver string
}

func (f *dbFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.db, "db", "", "database URL")
	fs.StringVar(&f.dir, "dir", "", "directory containing migration files")
	fs.StringVar(&f.table, "table", "", "bookkeeping table name")
	fs.StringVar(&f.driver, "driver", "", "database/sql driver (pgx or postgres)")
}

// source returns the migration source named by flag or config.
func (f *dbFlags) source() source.Source {
	return source.Dir(resolveString(f.dir, cfg.Migrations.Dir))
}

// options returns migrator options with flags overriding config.
func (f *dbFlags) options() []migrator.Option {
	return append(cfg.MigratorOptions(log),
		migrator.WithTableName(f.table),
		migrator.WithDriver(f.driver),
	)
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

// resolveString returns the first non-empty string from the provided values.
// Used to implement precedence: flag > config > default.
func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveBool returns true if any of the provided values is true.
func resolveBool(values ...bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}
