package migrator

import (
	"io"

	"go.uber.org/zap"
)

// DefaultTableName is the bookkeeping table used when none is configured.
const DefaultTableName = "pgup_migrations"

// Option configures a Migrator or EnsureDatabase.
type Option func(*options)

type options struct {
	table   string
	log     *zap.Logger
	connect Connector
	dryRun  io.Writer
}

func newOptions(opts []Option) options {
	o := options{
		table:   DefaultTableName,
		log:     zap.NewNop(),
		connect: DriverConnector(DefaultDriver),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTableName sets the bookkeeping table name. An empty name keeps
// DefaultTableName.
func WithTableName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.table = name
		}
	}
}

// WithLogger sets the logger used to report progress. Errors are returned,
// never logged.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithDriver selects the database/sql driver used to connect. The driver
// must be registered; "pgx" and "postgres" are always available.
func WithDriver(name string) Option {
	return func(o *options) {
		if name != "" {
			o.connect = DriverConnector(name)
		}
	}
}

// WithConnector replaces how connections are opened.
func WithConnector(c Connector) Option {
	return func(o *options) {
		if c != nil {
			o.connect = c
		}
	}
}

// WithDryRun writes the SQL a run would execute to w instead of applying
// it. Nothing is created in the database.
func WithDryRun(w io.Writer) Option {
	return func(o *options) {
		o.dryRun = w
	}
}
