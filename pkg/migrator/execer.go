package migrator

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/multierr"
)

// DefaultDriver is the database/sql driver used when none is configured.
// Register and select "postgres" (github.com/lib/pq) with WithDriver to use
// lib/pq instead.
const DefaultDriver = "pgx"

// Execer is the minimal interface needed to read and write migration state.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is a single dedicated database connection. Implemented by *sql.Conn.
type Conn interface {
	Execer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// Connector opens a dedicated connection to the database at url. A
// Connector must actually reach the server before returning so that
// "database does not exist" is reported on connect.
type Connector func(ctx context.Context, url string) (Conn, error)

// DriverConnector returns a Connector that opens connections through the
// named database/sql driver.
func DriverConnector(driverName string) Connector {
	return func(ctx context.Context, url string) (Conn, error) {
		db, err := sql.Open(driverName, url)
		if err != nil {
			return nil, err
		}
		conn, err := db.Conn(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &driverConn{Conn: conn, db: db}, nil
	}
}

// driverConn owns the pool behind its connection and closes both together.
type driverConn struct {
	*sql.Conn
	db *sql.DB
}

func (c *driverConn) Close() error {
	return multierr.Append(c.Conn.Close(), c.db.Close())
}
