package migrator

import (
	"sort"
	"unicode/utf8"
)

// Plan is the result of reconciling recorded history against the
// migrations a source provides.
type Plan struct {
	// Migrations holds every available migration name in application order.
	Migrations []string

	// Applied is the number of leading Migrations already recorded.
	Applied int
}

// Pending returns the migrations that have not been applied yet, in the
// order they must run.
func (p *Plan) Pending() []string {
	return p.Migrations[p.Applied:]
}

// Reconcile checks that history is a prefix of the sorted migration names
// and returns the plan for bringing the database up to date.
//
// Names are sorted by byte-wise string comparison regardless of input order.
// Reconciliation fails with:
//   - ErrDeletedMigrations when history is longer than names
//   - a MissingMigration error naming the first sorted migration whose
//     position disagrees with history (renamed, reordered, or inserted
//     before an applied migration)
//   - an InvalidPath error for a name that is not valid UTF-8
func Reconcile(history, names []string) (*Plan, error) {
	if len(history) > len(names) {
		return nil, ErrDeletedMigrations
	}

	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	for pos, name := range sorted {
		if !utf8.ValidString(name) {
			return nil, &MigrationError{Kind: InvalidPath, Name: name}
		}
		if pos < len(history) && history[pos] != name {
			return nil, &MigrationError{Kind: MissingMigration, Name: name}
		}
	}

	return &Plan{Migrations: sorted, Applied: len(history)}, nil
}
