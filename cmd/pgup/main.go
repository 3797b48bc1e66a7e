// Package main provides the pgup CLI for applying SQL migrations to
// PostgreSQL.
//
// The CLI supports:
//   - migrate: Create the database if needed and apply pending migrations
//   - status: Show applied and pending migrations
//   - doctor: Run health checks on the database and migration files
//   - new: Create the next numbered migration file
//
// Usage:
//
//	pgup [flags] <command>
//
// Commands that need a database read --db, database.url in pgup.yaml, or
// PGUP_DATABASE_URL.
package main

func main() {
	Execute()
}
