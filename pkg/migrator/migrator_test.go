package migrator

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pthm/pgup/internal/pgerr"
	"github.com/pthm/pgup/pkg/source"
)

var (
	initSQL   = "CREATE TABLE widgets (id SERIAL PRIMARY KEY);"
	addColSQL = "ALTER TABLE widgets ADD COLUMN name TEXT;"
	indexSQL  = "CREATE INDEX widgets_name_idx ON widgets (name);"
)

func TestRun_FreshDatabase(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	// Deliberately unsorted input.
	src := source.Map{
		"001_add_col.sql": addColSQL,
		"000_init.sql":    initSQL,
	}

	mock.ExpectQuery(regexp.QuoteMeta(selectHistorySQL(DefaultTableName))).
		WillReturnError(&pgconn.PgError{Code: pgerr.UndefinedTable})
	mock.ExpectBegin()
	expectCreateTable(mock, DefaultTableName)
	expectApply(mock, DefaultTableName, "000_init.sql", initSQL)
	expectApply(mock, DefaultTableName, "001_add_col.sql", addColSQL)
	mock.ExpectCommit()

	res, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.DatabaseCreated)
	assert.Equal(t, []string{"000_init.sql", "001_add_col.sql"}, res.Applied)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, []string{testURL, testURL}, conn.Calls(), "provision probe then migration connection")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_NoOpWhenUpToDate(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{
		"000_init.sql":    initSQL,
		"001_add_col.sql": addColSQL,
	}

	// Only the history read; no transaction at all.
	expectHistory(mock, DefaultTableName, "000_init.sql", "001_add_col.sql")

	res, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_AppendedMigration(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{
		"000_init.sql":    initSQL,
		"001_add_col.sql": addColSQL,
		"002_index.sql":   indexSQL,
	}

	expectHistory(mock, DefaultTableName, "000_init.sql", "001_add_col.sql")
	mock.ExpectBegin()
	// History is not empty, so the table is not created again.
	expectApply(mock, DefaultTableName, "002_index.sql", indexSQL)
	mock.ExpectCommit()

	res, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"002_index.sql"}, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_EmptySourceEmptyHistory(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectHistorySQL(DefaultTableName))).
		WillReturnError(&pgconn.PgError{Code: pgerr.UndefinedTable})

	res, err := New(testURL, source.Map{}, WithConnector(conn.connect)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_CustomTableName(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	const table = "schema_history"
	src := source.Map{"000_init.sql": initSQL}

	expectHistory(mock, table)
	mock.ExpectBegin()
	expectCreateTable(mock, table)
	expectApply(mock, table, "000_init.sql", initSQL)
	mock.ExpectCommit()

	m := New(testURL, src, WithConnector(conn.connect), WithTableName(table))
	assert.Equal(t, table, m.TableName())

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_DeletedMigrations(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{"000_init.sql": initSQL}
	expectHistory(mock, DefaultTableName, "000_init.sql", "001_add_col.sql")

	_, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsDeletedMigrations(err))
	// Fails before any transaction is started.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_EmptySourceWithHistory(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	expectHistory(mock, DefaultTableName, "000_init.sql")

	_, err := New(testURL, source.Map{}, WithConnector(conn.connect)).Run(context.Background())
	assert.True(t, IsDeletedMigrations(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_InsertedBeforeApplied(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{
		"000_a.sql":   "SELECT 1;",
		"000_5_c.sql": "SELECT 2;",
		"001_b.sql":   "SELECT 3;",
	}
	expectHistory(mock, DefaultTableName, "000_a.sql", "001_b.sql")

	_, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsMissingMigration(err))

	name, ok := MigrationName(err)
	require.True(t, ok)
	assert.Equal(t, "000_5_c.sql", name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_InvalidContentRollsBack(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{
		"000_init.sql": initSQL,
		"001_bad.sql":  "SELECT '\xff\xfe';",
	}

	expectHistory(mock, DefaultTableName)
	mock.ExpectBegin()
	expectCreateTable(mock, DefaultTableName)
	expectApply(mock, DefaultTableName, "000_init.sql", initSQL)
	mock.ExpectRollback()

	_, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsInvalidMigrationContent(err))

	name, _ := MigrationName(err)
	assert.Equal(t, "001_bad.sql", name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_InvalidPath(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{"000_\xff.sql": initSQL}
	expectHistory(mock, DefaultTableName)

	_, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsInvalidMigrationPath(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ExecFailureRollsBack(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{
		"000_init.sql":    initSQL,
		"001_add_col.sql": addColSQL,
	}
	syntaxErr := &pgconn.PgError{Code: "42601", Message: "syntax error"}

	expectHistory(mock, DefaultTableName)
	mock.ExpectBegin()
	expectCreateTable(mock, DefaultTableName)
	expectApply(mock, DefaultTableName, "000_init.sql", initSQL)
	mock.ExpectExec(regexp.QuoteMeta(addColSQL)).WillReturnError(syntaxErr)
	mock.ExpectRollback()

	_, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)

	var dbErr *DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "applying migration 001_add_col.sql", dbErr.Op)
	assert.Equal(t, "42601", pgerr.Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_DuplicateRecordRollsBack(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{"000_init.sql": initSQL}

	expectHistory(mock, DefaultTableName)
	mock.ExpectBegin()
	expectCreateTable(mock, DefaultTableName)
	mock.ExpectExec(regexp.QuoteMeta(initSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertHistorySQL(DefaultTableName))).
		WithArgs("000_init.sql").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)

	var dbErr *DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "recording migration 000_init.sql", dbErr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_CommitFailure(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	src := source.Map{"000_init.sql": initSQL}

	expectHistory(mock, DefaultTableName)
	mock.ExpectBegin()
	expectCreateTable(mock, DefaultTableName)
	expectApply(mock, DefaultTableName, "000_init.sql", initSQL)
	mock.ExpectCommit().WillReturnError(errors.New("connection reset by peer"))

	_, err := New(testURL, src, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)

	var dbErr *DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "committing migrations", dbErr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_BeginFailure(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	expectHistory(mock, DefaultTableName)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := New(testURL, source.Map{"000_init.sql": initSQL}, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_HistoryReadFailure(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectHistorySQL(DefaultTableName))).
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied"})

	_, err := New(testURL, source.Map{"000_init.sql": initSQL}, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsCurrentMigrationsErr(err))
	assert.Equal(t, "42501", pgerr.Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ConnectFailureAfterProvision(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)
	conn.failNext(testURL, nil)
	conn.failNext(testURL, errors.New("connection refused"))

	_, err := New(testURL, source.Map{}, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)

	var dbErr *DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "connecting to database", dbErr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_SourceFailure(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)

	expectHistory(mock, DefaultTableName)

	_, err := New(testURL, failingSource{}, WithConnector(conn.connect)).Run(context.Background())
	require.Error(t, err)

	var srcErr *SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Empty(t, srcErr.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_LogsAppliedMigrations(t *testing.T) {
	db, mock := newMock(t)
	conn := newFakeConnector(db)
	core, logs := observer.New(zapcore.InfoLevel)

	src := source.Map{"000_init.sql": initSQL}

	expectHistory(mock, DefaultTableName)
	mock.ExpectBegin()
	expectCreateTable(mock, DefaultTableName)
	expectApply(mock, DefaultTableName, "000_init.sql", initSQL)
	mock.ExpectCommit()

	_, err := New(testURL, src, WithConnector(conn.connect), WithLogger(zap.New(core))).Run(context.Background())
	require.NoError(t, err)

	applied := logs.FilterMessage("Applied migration").All()
	require.Len(t, applied, 1)
	assert.Equal(t, "000_init.sql", applied[0].ContextMap()["migration"])
	assert.Equal(t, 1, logs.FilterMessage("Applying migrations").Len())
}

type failingSource struct{}

func (failingSource) Names() ([]string, error)      { return nil, errors.New("disk on fire") }
func (failingSource) Read(string) ([]byte, error) { return nil, errors.New("disk on fire") }
