// Package testutil provides a shared PostgreSQL server for integration tests.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Singleton container state
var (
	singletonOnce sync.Once
	singletonDSN  string
	singletonErr  error
)

// ensureSingleton lazily starts the PostgreSQL container shared by every
// test in the process. Ryuk terminates it when the process exits.
func ensureSingleton() (string, error) {
	singletonOnce.Do(func() {
		ctx := context.Background()

		container, err := postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			singletonErr = fmt.Errorf("failed to start PostgreSQL container: %w", err)
			return
		}

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			singletonErr = fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
			return
		}
		singletonDSN = dsn
	})

	return singletonDSN, singletonErr
}

// RequireDocker skips the test in -short mode or when no container provider
// is available.
func RequireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// AdminURL returns the URL of the maintenance database on the shared server.
func AdminURL(t *testing.T) string {
	t.Helper()
	RequireDocker(t)

	dsn, err := ensureSingleton()
	require.NoError(t, err, "failed to start PostgreSQL container")
	return dsn
}

// NewDatabaseURL returns the URL of a uniquely named database that does not
// exist yet. It is dropped when the test completes if anything created it.
func NewDatabaseURL(t *testing.T) string {
	t.Helper()

	admin := AdminURL(t)
	name := uniqueDBName("pgup")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = dropDatabase(ctx, admin, name)
	})
	return ReplaceDBName(admin, name)
}

// Open connects to url and closes the pool when the test completes.
func Open(tb testing.TB, url string) *sql.DB {
	tb.Helper()

	db, err := sql.Open("pgx", url)
	require.NoError(tb, err)
	require.NoError(tb, db.Ping(), "failed to ping %s", url)
	tb.Cleanup(func() { _ = db.Close() })
	return db
}

// uniqueDBName generates a unique database name with the given prefix.
func uniqueDBName(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

func dropDatabase(ctx context.Context, adminDSN, name string) error {
	db, err := sql.Open("pgx", adminDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(name)+" WITH (FORCE)")
	return err
}

// ReplaceDBName replaces the database name in a PostgreSQL URL, keeping any
// query parameters.
func ReplaceDBName(dsn, newDB string) string {
	i := strings.LastIndexByte(dsn, '/')
	if i < 0 {
		return dsn
	}
	rest := ""
	if q := strings.IndexByte(dsn[i+1:], '?'); q >= 0 {
		rest = dsn[i+1+q:]
	}
	return dsn[:i+1] + newDB + rest
}
