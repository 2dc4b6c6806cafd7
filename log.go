package wal

import (
	"github.com/pkg/errors"
)

var (
	// ErrFull is returned by Push when rolling over to a new chunk would
	// exceed the configured MaxChunks.
	ErrFull = errors.New("wal: log full")

	// ErrCorrupt is returned by Open when the recovered chunks do not
	// form a contiguous run of ids and entry indexes.
	ErrCorrupt = errors.New("wal: corrupt log directory")

	// ErrPoisoned is returned by Push after a prior write or sync failure
	// has invalidated the write-active chunk's state. The log must be
	// reopened before it will accept writes again.
	ErrPoisoned = errors.New("wal: chunk poisoned by earlier write failure")

	// ErrClosed is returned by every operation on a closed *Log.
	ErrClosed = errors.New("wal: log closed")
)

// Entry is one payload stored in the log, together with the monotonic index
// assigned to it at push time.
type Entry struct {
	Index uint64
	Data  []byte
}

// Log is a disk-backed queue. Producers push opaque byte payloads, and a
// single consumer pops them back in strict append order, acknowledges
// completed work with Ack, and rewinds unacknowledged reads with Revert.
// Every successful Push is durable: the frame has been written and fsynced
// before Push returns.
//
// A Log is single-owner. None of its methods may be called concurrently;
// callers that share a Log must serialize access themselves.
type Log struct {
	dir  string
	fsys FS

	chunkSize uint64
	maxChunks int

	// chunks is ordered ascending by chunk id. The last element receives
	// pushes; chunks[readIdx] serves pops.
	chunks  []*chunk
	readIdx int

	nextChunkID uint64
	nextIndex   uint64

	closed bool
}

// Open opens the log rooted at dir, creating the directory if it does not
// exist. Any chunk files already present are recovered: each is scanned to
// its last good frame boundary, partial tails are truncated away, and the
// chunk set is verified to be contiguous in both chunk id and entry index.
//
// If the previous owner shut down cleanly, the ack marker it left behind
// fast-forwards the read and ack positions past everything already
// acknowledged. Without a marker, the usual state after a crash, read and
// ack positions restart at the oldest surviving entry, and entries that
// were acknowledged but not yet reclaimed are delivered again.
func Open(dir string, options ...Option) (*Log, error) {
	l := &Log{
		dir:       dir,
		fsys:      osFS{},
		chunkSize: DefaultChunkSize,
		maxChunks: DefaultMaxChunks,
	}
	for _, option := range options {
		if err := option(l); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}

	if err := l.fsys.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "mkdir")
	}

	infos, err := listChunkFiles(l.fsys, dir)
	if err != nil {
		return nil, err
	}

	// The ack marker, if a clean shutdown left one behind, is consumed
	// up front so a crash later in this open cannot replay a stale
	// watermark.
	ackIndex, haveMarker, err := consumeAckMarker(l.fsys, dir)
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 {
		c, err := createChunk(l.fsys, dir, 0, 0, l.chunkSize)
		if err != nil {
			return nil, err
		}
		l.chunks = []*chunk{c}
		l.nextChunkID = 1
		l.nextIndex = 0
		return l, nil
	}

	for i, info := range infos {
		if i > 0 {
			prev := l.chunks[i-1]
			if info.id != prev.id+1 {
				l.closeAll()
				return nil, errors.Wrapf(ErrCorrupt, "chunk id gap: %d follows %d", info.id, prev.id)
			}
			if want := prev.baseIndex + prev.entries; info.baseIndex != want {
				l.closeAll()
				return nil, errors.Wrapf(ErrCorrupt, "chunk %d base index %d, want %d", info.id, info.baseIndex, want)
			}
		}
		c, err := openChunk(l.fsys, dir, info, l.chunkSize)
		if err != nil {
			l.closeAll()
			return nil, err
		}
		l.chunks = append(l.chunks, c)
	}

	last := l.chunks[len(l.chunks)-1]
	l.nextChunkID = last.id + 1
	l.nextIndex = last.baseIndex + last.entries

	if haveMarker {
		if err := l.applyAckMarker(ackIndex); err != nil {
			l.closeAll()
			return nil, err
		}
	}
	return l, nil
}

// applyAckMarker fast-forwards the read and ack positions to the entry
// index a clean shutdown recorded, so already-acknowledged entries are not
// delivered a second time.
func (l *Log) applyAckMarker(index uint64) error {
	for _, c := range l.chunks {
		if index <= c.baseIndex {
			break
		}
		if index >= c.baseIndex+c.entries {
			if err := c.seekToEntry(c.entries); err != nil {
				return err
			}
		} else if err := c.seekToEntry(index - c.baseIndex); err != nil {
			return err
		}
		c.ack()
	}

	l.readIdx = len(l.chunks) - 1
	for i, c := range l.chunks {
		if c.ackOffset < c.writeOffset {
			l.readIdx = i
			break
		}
	}
	return nil
}

// ackIndex returns the index of the first entry that has not been
// acknowledged, or the next index to be assigned when everything has been.
func (l *Log) ackIndex() uint64 {
	for _, c := range l.chunks {
		if c.ackOffset < c.writeOffset {
			return c.baseIndex + c.ackEntries
		}
	}
	return l.nextIndex
}

// Push appends payload to the log and returns the index assigned to it. The
// entry is on stable storage when Push returns.
//
// When the write-active chunk is full, Push first rolls over to a freshly
// created chunk. If doing so would exceed MaxChunks, Push returns ErrFull
// and creates nothing; the caller can pop and ack to free older chunks, and
// retry.
func (l *Log) Push(payload []byte) (uint64, error) {
	if l.closed {
		return 0, ErrClosed
	}

	w := l.chunks[len(l.chunks)-1]
	if w.full {
		if len(l.chunks) >= l.maxChunks {
			return 0, ErrFull
		}
		c, err := createChunk(l.fsys, l.dir, l.nextChunkID, l.nextIndex, l.chunkSize)
		if err != nil {
			return 0, err
		}
		l.chunks = append(l.chunks, c)
		l.nextChunkID++
		w = c
	}

	index, err := w.push(payload)
	if err != nil {
		return 0, err
	}
	l.nextIndex = index + 1
	return index, nil
}

// Pop returns the oldest unread entry, or (nil, nil) once the log has been
// read up to its durable tail. Popped entries are redelivered by a later
// Revert unless they have been acknowledged first.
func (l *Log) Pop() (*Entry, error) {
	if l.closed {
		return nil, ErrClosed
	}

	for {
		c := l.chunks[l.readIdx]
		entry, err := c.pop()
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}

		// The read-active chunk is drained. Move on to the next one
		// if there is one; reclamation is Ack's job, not ours.
		if l.readIdx == len(l.chunks)-1 {
			return nil, nil
		}
		l.readIdx++
	}
}

// Ack acknowledges every entry returned by Pop since the last Ack. The
// acknowledged watermark of each chunk up to and including the read-active
// one advances to its read position, and any older chunk that is now fully
// acknowledged is closed and unlinked, as long as a later chunk exists to
// absorb new pushes.
func (l *Log) Ack() error {
	if l.closed {
		return ErrClosed
	}

	for i := 0; i <= l.readIdx; i++ {
		l.chunks[i].ack()
	}

	for len(l.chunks) > 1 && l.chunks[0].exhausted() {
		if err := l.chunks[0].closeAndRemove(); err != nil {
			return err
		}
		l.chunks = l.chunks[1:]
		if l.readIdx > 0 {
			l.readIdx--
		}
	}
	return nil
}

// Revert rewinds the read position of every chunk to its acknowledged
// watermark. The next run of Pops redelivers, in order, everything popped
// since the last Ack. Revert performs no I/O.
func (l *Log) Revert() error {
	if l.closed {
		return ErrClosed
	}

	for _, c := range l.chunks {
		c.revert()
	}

	l.readIdx = len(l.chunks) - 1
	for i, c := range l.chunks {
		if c.ackOffset < c.writeOffset {
			l.readIdx = i
			break
		}
	}
	return nil
}

// Depth returns the number of entries that have been pushed but not yet
// popped.
func (l *Log) Depth() uint64 {
	var n uint64
	for _, c := range l.chunks {
		n += c.entries - c.readEntries
	}
	return n
}

// Chunks returns the number of chunk files currently open.
func (l *Log) Chunks() int {
	return len(l.chunks)
}

// Close writes the ack marker, fsyncs the write-active chunk, and closes
// every chunk's file handle. The marker lets the next Open resume delivery
// from the first unacknowledged entry; if the process dies before Close, no
// marker is written and recovery redelivers from the oldest surviving entry
// instead. Close is idempotent.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	if err := writeAckMarker(l.fsys, l.dir, l.ackIndex()); err != nil {
		l.closeAll()
		return err
	}

	w := l.chunks[len(l.chunks)-1]
	if !w.poisoned {
		if err := w.sync(); err != nil {
			l.closeAll()
			return err
		}
	}
	return l.closeAll()
}

func (l *Log) closeAll() error {
	var first error
	for _, c := range l.chunks {
		if err := c.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
