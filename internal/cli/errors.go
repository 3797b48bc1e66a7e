// Package cli provides shared configuration and utilities for the pgup CLI.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/pthm/pgup/pkg/migrator"
)

// Exit codes.
const (
	ExitSuccess        = 0
	ExitGeneral        = 1
	ExitConfig         = 2
	ExitSource         = 3
	ExitDBConnect      = 4
	ExitMigrationState = 5
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitWithError prints the error and exits with the appropriate code.
func ExitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitCode(err))
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// SourceError creates an ExitError with ExitSource code.
func SourceError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitSource, Message: msg, Err: err}
}

// DBConnectError creates an ExitError with ExitDBConnect code.
func DBConnectError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitDBConnect, Message: msg, Err: err}
}

// MigrationStateError creates an ExitError with ExitMigrationState code.
func MigrationStateError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitMigrationState, Message: msg, Err: err}
}

// GeneralError creates an ExitError with ExitGeneral code.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}

// MigratorError classifies an error returned by the migrator.
func MigratorError(msg string, err error) *ExitError {
	var srcErr *migrator.SourceError
	switch {
	case migrator.IsInvalidURL(err):
		return ConfigError(msg, err)
	case errors.As(err, &srcErr), migrator.IsInvalidMigrationPath(err), migrator.IsInvalidMigrationContent(err):
		return SourceError(msg, err)
	case migrator.IsExistingConnectErr(err), migrator.IsBaseConnectErr(err):
		return DBConnectError(msg, err)
	case migrator.IsDeletedMigrations(err), migrator.IsMissingMigration(err), migrator.IsCurrentMigrationsErr(err):
		return MigrationStateError(msg, err)
	default:
		return GeneralError(msg, err)
	}
}
