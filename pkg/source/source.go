// Package source provides the migration scripts that pgup applies.
//
// A migration is identified by its name (for file-backed sources, the file
// name). Names are the durable identity recorded in the bookkeeping table
// and the sort key that fixes application order, so a migration must never
// be renamed once it has been applied anywhere.
//
// The suggested naming convention is a zero-padded numeric prefix:
//
//	000_init.sql
//	001_add_users.sql
//	002_index_users_email.sql
//
// Bundle migrations into the binary with embed:
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	src := source.FS(migrations, "migrations")
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
)

// Source supplies migration scripts by name.
type Source interface {
	// Names returns the name of every available migration. Order is not
	// significant; callers sort names before use.
	Names() ([]string, error)

	// Read returns the full content of the named migration.
	Read(name string) ([]byte, error)
}

// fsSource reads migrations from the top level of a directory in an fs.FS.
type fsSource struct {
	fsys fs.FS
	dir  string
}

// FS returns a Source over the regular files directly inside dir in fsys.
// Subdirectories are ignored. Use "." or "" for the root of fsys.
//
// Works with embed.FS, os.DirFS and testing/fstest.MapFS.
func FS(fsys fs.FS, dir string) Source {
	if dir == "" {
		dir = "."
	}
	return &fsSource{fsys: fsys, dir: dir}
}

// Dir returns a Source over the files in a directory on disk.
func Dir(dir string) Source {
	return FS(os.DirFS(dir), ".")
}

func (s *fsSource) Names() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *fsSource) Read(name string) ([]byte, error) {
	return fs.ReadFile(s.fsys, path.Join(s.dir, name))
}

// Map is an in-memory Source keyed by migration name. Useful for tests and
// for migrations generated at runtime.
type Map map[string]string

// Names returns the keys of m in sorted order.
func (m Map) Names() ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the content stored under name.
func (m Map) Read(name string) ([]byte, error) {
	content, ok := m[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return []byte(content), nil
}

// IsNotExist reports whether err indicates a missing migration.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
