package wal

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// The ack marker is a tiny sibling file holding the index of the first
// unacknowledged entry, written on clean shutdown and consumed on the next
// open. It is what makes delivery exactly-once across a clean close/open
// cycle. A crash never leaves a marker behind, so recovery after a crash
// restarts from the oldest surviving entry and redelivers anything that was
// acknowledged but not yet reclaimed.
const (
	ackMarkerName    = "ack.marker"
	ackMarkerTmpName = "ack.marker.tmp"
)

// writeAckMarker atomically replaces the ack marker in dir with one holding
// index: the marker is staged in a temporary file, fsynced, and renamed into
// place.
func writeAckMarker(fsys FS, dir string, index uint64) error {
	tmp := filepath.Join(dir, ackMarkerTmpName)
	f, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "create ack marker")
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	if _, err := f.Write(buf[:]); err != nil {
		f.Close()
		return errors.Wrap(err, "write ack marker")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "sync ack marker")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close ack marker")
	}

	if err := fsys.Rename(tmp, filepath.Join(dir, ackMarkerName)); err != nil {
		return errors.Wrap(err, "rename ack marker")
	}
	return errors.Wrap(fsys.SyncDir(dir), "sync dir")
}

// consumeAckMarker reads and removes the ack marker in dir, if one exists.
// The second return value reports whether a marker was found. Removing the
// marker before applying it means a later crash cannot resurrect a stale
// watermark.
func consumeAckMarker(fsys FS, dir string) (uint64, bool, error) {
	path := filepath.Join(dir, ackMarkerName)
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if os.IsNotExist(errors.Cause(err)) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, errors.Wrap(err, "open ack marker")
	}

	var buf [8]byte
	_, err = io.ReadFull(f, buf[:])
	f.Close()
	if err != nil {
		// A short or unreadable marker is treated as absent; the log
		// falls back to redelivering from the oldest entry.
		fsys.Remove(path)
		return 0, false, nil
	}

	if err := fsys.Remove(path); err != nil {
		return 0, false, errors.Wrap(err, "remove ack marker")
	}
	if err := fsys.SyncDir(dir); err != nil {
		return 0, false, errors.Wrap(err, "sync dir")
	}
	return binary.BigEndian.Uint64(buf[:]), true, nil
}
