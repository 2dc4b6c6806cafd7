package wal

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// lastIO records the direction of the most-recent file operation on a chunk,
// so that push and pop only issue a seek when the file position actually
// needs to move.
type lastIO int

const (
	ioNone lastIO = iota // position unknown; the next op must seek
	ioRead
	ioWrite
)

// chunk owns exactly one append-only file on disk, holding a contiguous run
// of frames. All offsets sit on frame boundaries, and
// 0 <= ackOffset <= readOffset <= writeOffset at all times.
type chunk struct {
	fsys FS
	path string

	id        uint64
	baseIndex uint64

	f File

	writeOffset int64
	readOffset  int64
	ackOffset   int64

	// entries counts all frames in the file; readEntries and ackEntries
	// count how many of them have been popped and acknowledged. Keeping
	// the entry counts alongside the offsets lets revert rewind without
	// rescanning the file.
	entries     uint64
	readEntries uint64
	ackEntries  uint64

	last     lastIO
	limit    uint64 // soft byte limit; exceeding it marks the chunk full
	full     bool
	poisoned bool
}

// createChunk exclusively creates a new, empty chunk file, and fsyncs the
// parent directory so the file name survives a crash.
func createChunk(fsys FS, dir string, id, baseIndex, limit uint64) (*chunk, error) {
	path := filepath.Join(dir, chunkFileName(id, baseIndex))
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "create chunk %s", path)
	}
	if err := fsys.SyncDir(dir); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "sync dir")
	}
	return &chunk{
		fsys:      fsys,
		path:      path,
		id:        id,
		baseIndex: baseIndex,
		f:         f,
		limit:     limit,
	}, nil
}

// openChunk opens an existing chunk file and recovers its write offset by
// scanning frames from the start of the file. A partial frame at the tail,
// the usual result of a crash mid-append, is cut off and the file is
// truncated back to the last good frame boundary.
//
// Read and ack state starts at the beginning of the file; when a clean
// shutdown left an ack marker, Open fast-forwards them afterwards.
func openChunk(fsys FS, dir string, info chunkFileInfo, limit uint64) (*chunk, error) {
	path := filepath.Join(dir, info.name)
	f, err := fsys.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open chunk %s", path)
	}

	c := &chunk{
		fsys:      fsys,
		path:      path,
		id:        info.id,
		baseIndex: info.baseIndex,
		f:         f,
		limit:     limit,
	}
	if err := c.recover(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "recover chunk %s", path)
	}
	return c, nil
}

// recover scans the file from offset zero, frame by frame, to find the last
// good frame boundary. Anything past that boundary is discarded.
func (c *chunk) recover() error {
	size, err := c.f.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.Wrap(err, "seek end")
	}
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek start")
	}

	var (
		offset  int64
		entries uint64
	)
	for {
		_, n, err := readFrame(c.f, size-offset)
		if err == errEndOfChunk || err == errTruncatedFrame {
			break
		} else if err != nil {
			return err
		}
		offset += n
		entries++
	}

	if size > offset {
		if err := c.f.Truncate(offset); err != nil {
			return errors.Wrap(err, "truncate to frame boundary")
		}
		if err := c.f.Sync(); err != nil {
			return errors.Wrap(err, "sync")
		}
	}

	c.writeOffset = offset
	c.entries = entries
	c.full = uint64(offset) > c.limit
	c.last = ioNone
	return nil
}

// push appends one frame and fsyncs it. The entry is durable once push
// returns. A failed write or sync leaves the in-memory offsets untouched and
// poisons the chunk; further pushes fail fast until the log is reopened.
func (c *chunk) push(payload []byte) (uint64, error) {
	if c.poisoned {
		return 0, ErrPoisoned
	}

	if c.last != ioWrite {
		if _, err := c.f.Seek(c.writeOffset, io.SeekStart); err != nil {
			c.poisoned = true
			return 0, errors.Wrapf(err, "seek %s", c.path)
		}
	}

	frame := encodeFrame(payload)
	if _, err := c.f.Write(frame); err != nil {
		c.poisoned = true
		c.last = ioNone
		return 0, errors.Wrapf(err, "append to %s", c.path)
	}
	if err := c.f.Sync(); err != nil {
		c.poisoned = true
		c.last = ioNone
		return 0, errors.Wrapf(err, "sync %s", c.path)
	}

	index := c.baseIndex + c.entries
	c.writeOffset += int64(len(frame))
	c.entries++
	c.last = ioWrite
	if uint64(c.writeOffset) > c.limit {
		c.full = true
	}
	return index, nil
}

// pop returns the next unread entry, or nil when the chunk has been read up
// to its durable tail.
func (c *chunk) pop() (*Entry, error) {
	if c.readOffset == c.writeOffset {
		return nil, nil
	}

	if c.last != ioRead {
		if _, err := c.f.Seek(c.readOffset, io.SeekStart); err != nil {
			return nil, errors.Wrapf(err, "seek %s", c.path)
		}
	}

	payload, n, err := readFrame(c.f, c.writeOffset-c.readOffset)
	if err != nil {
		c.last = ioNone
		return nil, errors.Wrapf(err, "read %s", c.path)
	}

	entry := &Entry{
		Index: c.baseIndex + c.readEntries,
		Data:  payload,
	}
	c.readOffset += n
	c.readEntries++
	c.last = ioRead
	return entry, nil
}

// seekToEntry positions the read offset on the k'th frame in the chunk,
// walking the length prefixes without reading any payloads. k is clamped to
// the number of entries in the chunk.
func (c *chunk) seekToEntry(k uint64) error {
	if k > c.entries {
		k = c.entries
	}

	var offset int64
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek %s", c.path)
	}
	for i := uint64(0); i < k; i++ {
		var header [frameHeaderSize]byte
		if _, err := io.ReadFull(c.f, header[:]); err != nil {
			return errors.Wrapf(err, "read frame header in %s", c.path)
		}
		offset += frameSize(int(binary.BigEndian.Uint64(header[:])))
		if _, err := c.f.Seek(offset, io.SeekStart); err != nil {
			return errors.Wrapf(err, "seek %s", c.path)
		}
	}

	c.readOffset = offset
	c.readEntries = k
	c.last = ioNone
	return nil
}

// ack moves the acknowledged watermark up to the read position. It performs
// no I/O.
func (c *chunk) ack() {
	c.ackOffset = c.readOffset
	c.ackEntries = c.readEntries
}

// revert rewinds the read position to the acknowledged watermark. The next
// pop re-delivers everything read since the last ack.
func (c *chunk) revert() {
	c.readOffset = c.ackOffset
	c.readEntries = c.ackEntries
	c.last = ioNone
}

// exhausted reports whether every entry in the chunk has been acknowledged
// and the chunk can take no more pushes, making it eligible for reclamation.
func (c *chunk) exhausted() bool {
	return c.full && c.ackOffset == c.writeOffset
}

func (c *chunk) sync() error {
	return errors.Wrapf(c.f.Sync(), "sync %s", c.path)
}

func (c *chunk) close() error {
	return errors.Wrapf(c.f.Close(), "close %s", c.path)
}

// closeAndRemove closes the chunk's file handle, unlinks the file, and
// fsyncs the parent directory so the removal sticks.
func (c *chunk) closeAndRemove() error {
	if err := c.f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", c.path)
	}
	if err := c.fsys.Remove(c.path); err != nil {
		return errors.Wrapf(err, "remove %s", c.path)
	}
	if err := c.fsys.SyncDir(filepath.Dir(c.path)); err != nil {
		return errors.Wrap(err, "sync dir")
	}
	return nil
}
