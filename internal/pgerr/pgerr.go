// Package pgerr extracts PostgreSQL SQLSTATE codes from driver errors.
//
// Both supported drivers expose the server's error code as a structured
// field: pgx through *pgconn.PgError and lib/pq through *pq.Error. Callers
// compare codes instead of matching on message text, which varies across
// server versions and locales.
package pgerr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgreSQL error codes recognised by pgup.
const (
	InvalidCatalogName = "3D000" // invalid_catalog_name: database does not exist
	UndefinedTable     = "42P01" // undefined_table
)

// Code returns the SQLSTATE carried by err, or "" when err is not (and does
// not wrap) a database error reported by the server.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}

// Is reports whether err carries the given SQLSTATE code.
func Is(err error, code string) bool {
	return code != "" && Code(err) == code
}

// IsDatabaseError reports whether err is a structured server error of any code.
func IsDatabaseError(err error) bool {
	return Code(err) != ""
}
