package migrator

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pthm/pgup/internal/pgerr"
)

// Record is one row of the bookkeeping table.
type Record struct {
	ID        int64
	Migration string
	Created   time.Time
}

// historyDDL creates the bookkeeping table. The unique constraint on
// migration is what stops two concurrent runs from both recording the same
// migration.
const historyDDL = `CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	migration TEXT UNIQUE NOT NULL,
	created TIMESTAMP NOT NULL DEFAULT current_timestamp
)`

func createHistoryTableSQL(table string) string {
	return fmt.Sprintf(historyDDL, pq.QuoteIdentifier(table))
}

func selectHistorySQL(table string) string {
	return "SELECT migration FROM " + pq.QuoteIdentifier(table) + " ORDER BY id"
}

func selectRecordsSQL(table string) string {
	return "SELECT id, migration, created FROM " + pq.QuoteIdentifier(table) + " ORDER BY id"
}

func insertHistorySQL(table string) string {
	return "INSERT INTO " + pq.QuoteIdentifier(table) + " (migration) VALUES ($1)"
}

// readHistory returns the applied migration names in application order.
// A missing table is an empty history.
func readHistory(ctx context.Context, db Execer, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, selectHistorySQL(table))
	if err != nil {
		return nil, historyErr(table, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &HistoryError{Table: table, Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, historyErr(table, err)
	}
	return names, nil
}

// ReadRecords returns every row of the bookkeeping table ordered by id. The
// second result is false when the table does not exist.
func ReadRecords(ctx context.Context, db Execer, table string) ([]Record, bool, error) {
	rows, err := db.QueryContext(ctx, selectRecordsSQL(table))
	if err != nil {
		if pgerr.Is(err, pgerr.UndefinedTable) {
			return nil, false, nil
		}
		return nil, false, &HistoryError{Table: table, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Migration, &r.Created); err != nil {
			return nil, true, &HistoryError{Table: table, Err: err}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, true, &HistoryError{Table: table, Err: err}
	}
	return records, true, nil
}

func historyErr(table string, err error) error {
	if pgerr.Is(err, pgerr.UndefinedTable) {
		return nil
	}
	return &HistoryError{Table: table, Err: err}
}
