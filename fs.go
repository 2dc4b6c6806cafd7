package wal

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FS is the narrow set of filesystem capabilities a *Log needs. It exists so
// that the I/O substrate can be swapped out at construction time; see the
// FileSystem option. The default implementation is backed by the os package,
// and MemFS provides an in-memory one for tests and ephemeral queues.
type FS interface {
	// OpenFile opens the named file with the given flags and permissions,
	// with os.OpenFile semantics.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)

	// Remove deletes the named file.
	Remove(name string) error

	// Rename atomically replaces newname with oldname.
	Rename(oldname, newname string) error

	// MkdirAll creates the named directory, along with any missing
	// parents.
	MkdirAll(name string, perm os.FileMode) error

	// ReadDir returns the base names of the entries in the named
	// directory, sorted lexicographically.
	ReadDir(name string) ([]string, error)

	// SyncDir flushes directory metadata (entry creation and removal)
	// for the named directory to stable storage.
	SyncDir(name string) error
}

// File is the per-file capability set a chunk needs: sequential reads and
// writes, seeking, durability, and truncation.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// Sync flushes the file's contents to stable storage.
	Sync() error

	// Truncate changes the size of the file.
	Truncate(size int64) error
}

// osFS implements FS directly on top of the os package.
type osFS struct{}

func (osFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (osFS) Remove(name string) error {
	return os.Remove(name)
}

func (osFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (osFS) MkdirAll(name string, perm os.FileMode) error {
	err := checkDirPerms(name)
	if err != nil && os.IsNotExist(errors.Cause(err)) {
		return os.MkdirAll(name, perm)
	}
	return err
}

func (osFS) ReadDir(name string) ([]string, error) {
	entries, err := os.ReadDir(name)
	if err != nil {
		return nil, errors.Wrap(err, "read dir")
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, filepath.Base(entry.Name()))
	}
	sort.Strings(names)
	return names, nil
}

func (osFS) SyncDir(name string) error {
	return syncDir(name)
}
