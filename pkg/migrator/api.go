package migrator

import (
	"context"
	"io/fs"

	"github.com/pthm/pgup/pkg/source"
)

// Migrate applies every new migration from src to the database at url,
// creating the database first if it does not exist. This is the
// recommended high-level API for most applications.
//
// The function is idempotent - safe to call on every application startup.
// All new migrations and their bookkeeping rows are applied in a single
// transaction.
//
// Example usage on application startup:
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	if err := migrator.Migrate(ctx, os.Getenv("DATABASE_URL"), source.FS(migrations, "migrations")); err != nil {
//	    log.Fatalf("migration failed: %v", err)
//	}
//
// The bookkeeping table defaults to DefaultTableName; pass WithTableName
// to change it. For a preview without applying, pass WithDryRun. Use New
// and Migrator.Run when you need to know what was applied.
func Migrate(ctx context.Context, url string, src source.Source, opts ...Option) error {
	_, err := New(url, src, opts...).Run(ctx)
	return err
}

// MigrateFS applies the migrations stored directly inside dir in fsys.
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	err := migrator.MigrateFS(ctx, dbURL, migrations, "migrations")
func MigrateFS(ctx context.Context, url string, fsys fs.FS, dir string, opts ...Option) error {
	return Migrate(ctx, url, source.FS(fsys, dir), opts...)
}

// MigrateDir applies the migrations stored in a directory on disk.
func MigrateDir(ctx context.Context, url, dir string, opts ...Option) error {
	return Migrate(ctx, url, source.Dir(dir), opts...)
}
