package migrator

import (
	"context"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/pthm/pgup/internal/pgerr"
)

// EnsureDatabase guarantees the database named by url exists, creating it
// through the server's maintenance database when the first connection
// reports it missing (SQLSTATE 3D000). It reports whether it created the
// database.
//
// Nothing is retried. Any other connection failure is returned as a
// *ConnectError with Stage StageExisting; failing to reach the maintenance
// database is a *ConnectError with Stage StageBase.
func EnsureDatabase(ctx context.Context, url string, opts ...Option) (created bool, err error) {
	o := newOptions(opts)
	return ensureDatabase(ctx, &o, url)
}

func ensureDatabase(ctx context.Context, o *options, url string) (bool, error) {
	exists, err := databaseExists(ctx, o.connect, url)
	if err != nil || exists {
		return false, err
	}
	if err := createDatabase(ctx, o, url); err != nil {
		return false, err
	}
	return true, nil
}

// databaseExists connects to url and reports whether the database exists.
// Only a structured invalid_catalog_name error counts as absent.
func databaseExists(ctx context.Context, connect Connector, url string) (bool, error) {
	conn, err := connect(ctx, url)
	if err == nil {
		_ = conn.Close()
		return true, nil
	}
	if pgerr.Is(err, pgerr.InvalidCatalogName) {
		return false, nil
	}
	return false, &ConnectError{Stage: StageExisting, Err: err}
}

func createDatabase(ctx context.Context, o *options, url string) error {
	base, name, err := SplitURL(url)
	if err != nil {
		return err
	}
	admin, err := maintenanceURL(url)
	if err != nil {
		return err
	}

	conn, err := o.connect(ctx, admin)
	if err != nil {
		return &ConnectError{Stage: StageBase, URL: base, Err: err}
	}
	defer func() { _ = conn.Close() }()

	o.log.Info("Creating database", zap.String("database", name))
	if _, err := conn.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		return &DatabaseError{Op: "creating database " + pq.QuoteIdentifier(name), Err: err}
	}
	return nil
}
