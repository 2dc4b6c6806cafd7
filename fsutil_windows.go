//go:build windows

package wal

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func checkDirPerms(name string) error {
	fi, err := os.Stat(name)
	if err != nil {
		return errors.Wrap(err, "stat")
	}

	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", name)
	}

	// Attempt to write a file, and remove it before returning.
	testFile := filepath.Join(name, "walqwrchk")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrap(err, "no write perms?")
	}
	f.Close()
	os.Remove(testFile)
	return nil
}

// syncDir is a no-op on Windows; directory metadata cannot be fsynced
// through a handle the way it can on POSIX systems.
func syncDir(name string) error {
	return nil
}
