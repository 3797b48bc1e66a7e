package migrator

import (
	"errors"
	"fmt"
)

// ErrDeletedMigrations is returned when the bookkeeping table records more
// applied migrations than the source currently provides. Migrations are
// append-only; a deleted migration is never repaired automatically.
var ErrDeletedMigrations = errors.New("pgup: more migrations run than are known, indicating possibly deleted migrations")

// URLError is returned when the database name cannot be determined from a
// connection URL.
type URLError struct {
	URL string
}

func (e *URLError) Error() string {
	return fmt.Sprintf("pgup: invalid URL %q: could not determine database name", e.URL)
}

// ConnectStage identifies which connection attempt failed.
type ConnectStage int

const (
	// StageExisting is the first connection to the target database.
	StageExisting ConnectStage = iota
	// StageBase is the connection to the maintenance database used to
	// create a missing target database.
	StageBase
)

func (s ConnectStage) String() string {
	switch s {
	case StageExisting:
		return "existing"
	case StageBase:
		return "base"
	default:
		return "unknown"
	}
}

// ConnectError is returned by the provisioner when a connection attempt
// fails for any reason other than the target database being absent.
type ConnectError struct {
	Stage ConnectStage
	// URL is the base URL for StageBase failures, empty otherwise.
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	if e.Stage == StageBase {
		return fmt.Sprintf("pgup: error connecting to base URL %q to create database: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("pgup: error connecting to existing database: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// HistoryError is returned when the migration history cannot be read for a
// reason other than the bookkeeping table not existing yet.
type HistoryError struct {
	Table string
	Err   error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("pgup: error finding current migrations in %s: %v", e.Table, e.Err)
}

func (e *HistoryError) Unwrap() error {
	return e.Err
}

// MigrationErrorKind classifies a MigrationError.
type MigrationErrorKind int

const (
	// MissingMigration means history and the sorted source disagree at the
	// position of the named migration: it was renamed, reordered, or inserted
	// before a migration that had already run.
	MissingMigration MigrationErrorKind = iota
	// InvalidContent means the migration body is not valid UTF-8.
	InvalidContent
	// InvalidPath means the migration name is not valid UTF-8.
	InvalidPath
)

// MigrationError reports a problem with one specific migration.
type MigrationError struct {
	Kind MigrationErrorKind
	Name string
}

func (e *MigrationError) Error() string {
	switch e.Kind {
	case MissingMigration:
		return fmt.Sprintf("pgup: expected migration %q to already have been run", e.Name)
	case InvalidContent:
		return fmt.Sprintf("pgup: invalid utf-8 bytes in migration content: %q", e.Name)
	case InvalidPath:
		return fmt.Sprintf("pgup: invalid utf-8 bytes in migration path: %q", e.Name)
	default:
		return fmt.Sprintf("pgup: invalid migration %q", e.Name)
	}
}

// SourceError is returned when the migration source cannot list or read
// its migrations. Name is empty for listing failures.
type SourceError struct {
	Name string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("pgup: listing migrations: %v", e.Err)
	}
	return fmt.Sprintf("pgup: reading migration %q: %v", e.Name, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// DatabaseError wraps any other failure from the database: connecting,
// executing a migration, recording it, or committing.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("pgup: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// IsInvalidURL returns true if err is or wraps a *URLError.
func IsInvalidURL(err error) bool {
	var urlErr *URLError
	return errors.As(err, &urlErr)
}

// IsExistingConnectErr returns true if the first connection to the target
// database failed for a reason other than the database being absent.
func IsExistingConnectErr(err error) bool {
	return isConnectStage(err, StageExisting)
}

// IsBaseConnectErr returns true if the maintenance database could not be
// reached to create the target database.
func IsBaseConnectErr(err error) bool {
	return isConnectStage(err, StageBase)
}

func isConnectStage(err error, stage ConnectStage) bool {
	var connErr *ConnectError
	return errors.As(err, &connErr) && connErr.Stage == stage
}

// IsCurrentMigrationsErr returns true if err is or wraps a *HistoryError.
func IsCurrentMigrationsErr(err error) bool {
	var histErr *HistoryError
	return errors.As(err, &histErr)
}

// IsDeletedMigrations returns true if err is or wraps ErrDeletedMigrations.
func IsDeletedMigrations(err error) bool {
	return errors.Is(err, ErrDeletedMigrations)
}

// IsMissingMigration returns true if err reports a history/source mismatch.
func IsMissingMigration(err error) bool {
	return isMigrationKind(err, MissingMigration)
}

// IsInvalidMigrationContent returns true if err reports a migration body
// that is not valid UTF-8.
func IsInvalidMigrationContent(err error) bool {
	return isMigrationKind(err, InvalidContent)
}

// IsInvalidMigrationPath returns true if err reports a migration name that
// is not valid UTF-8.
func IsInvalidMigrationPath(err error) bool {
	return isMigrationKind(err, InvalidPath)
}

func isMigrationKind(err error, kind MigrationErrorKind) bool {
	var migErr *MigrationError
	return errors.As(err, &migErr) && migErr.Kind == kind
}

// MigrationName returns the migration named by err, if any.
func MigrationName(err error) (string, bool) {
	var migErr *MigrationError
	if errors.As(err, &migErr) {
		return migErr.Name, true
	}
	return "", false
}
