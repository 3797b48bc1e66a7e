package migrator

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

const testURL = "postgres://localhost/app?sslmode=disable"

// newMock returns a sqlmock database whose statements must arrive in the
// order they are expected.
func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// fakeConnector hands out connections from a sqlmock database, failing
// connection attempts to a URL with queued errors first.
type fakeConnector struct {
	db *sql.DB

	mu    sync.Mutex
	errs  map[string][]error
	calls []string
}

func newFakeConnector(db *sql.DB) *fakeConnector {
	return &fakeConnector{db: db, errs: make(map[string][]error)}
}

// failNext makes the next connection attempt to url fail with err.
func (f *fakeConnector) failNext(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = append(f.errs[url], err)
}

func (f *fakeConnector) connect(ctx context.Context, url string) (Conn, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	var err error
	if q := f.errs[url]; len(q) > 0 {
		err, f.errs[url] = q[0], q[1:]
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (f *fakeConnector) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func expectHistory(mock sqlmock.Sqlmock, table string, names ...string) {
	rows := sqlmock.NewRows([]string{"migration"})
	for _, name := range names {
		rows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(selectHistorySQL(table))).WillReturnRows(rows)
}

func expectCreateTable(mock sqlmock.Sqlmock, table string) {
	mock.ExpectExec(regexp.QuoteMeta(createHistoryTableSQL(table))).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectApply(mock sqlmock.Sqlmock, table, name, content string) {
	mock.ExpectExec(regexp.QuoteMeta(content)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertHistorySQL(table))).
		WithArgs(name).
		WillReturnResult(sqlmock.NewResult(1, 1))
}
