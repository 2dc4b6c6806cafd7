//go:build !windows

package wal

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// checkDirPerms checks to see if name exists, is a directory, and that we
// have write permission to it.
func checkDirPerms(name string) error {
	fi, err := os.Stat(name)
	if err != nil {
		return errors.Wrap(err, "stat")
	}

	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", name)
	}

	if err := unix.Access(name, unix.W_OK); err != nil {
		return errors.Wrap(err, "check write permissions")
	}

	return nil
}

// syncDir flushes directory metadata to stable storage, so that file
// creations and removals inside name survive a crash.
func syncDir(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.Wrap(err, "open dir")
	}
	defer f.Close()

	if err := unix.Fsync(int(f.Fd())); err != nil {
		return errors.Wrap(err, "fsync dir")
	}
	return nil
}
