package wal

import "github.com/pkg/errors"

const (
	// DefaultChunkSize is the default soft byte limit of a chunk (16MB).
	DefaultChunkSize uint64 = 16777216

	// DefaultMaxChunks is the default cap on concurrently-open chunks.
	DefaultMaxChunks = 64
)

// Option is a functional configuration type that can be used to configure
// the behaviour of a *Log.
type Option func(*Log) error

// ChunkSize sets the soft byte limit of a chunk.
//
// The limit is enforced after the push that crosses it: the push succeeds,
// the chunk is marked full, and the next push rolls over to a new chunk.
// Chunks on disk that are already larger than n, because the limit was
// lowered between runs, are tolerated.
func ChunkSize(n uint64) Option {
	return func(l *Log) error {
		if n == 0 {
			return errors.New("chunk size must be greater than zero")
		}
		l.chunkSize = n
		return nil
	}
}

// MaxChunks caps the number of concurrently-open chunks. When the
// write-active chunk is full and the cap has been reached, Push returns
// ErrFull until acknowledgements free an older chunk.
func MaxChunks(n int) Option {
	return func(l *Log) error {
		if n < 1 {
			return errors.New("max chunks must be at least 1")
		}
		l.maxChunks = n
		return nil
	}
}

// FileSystem swaps out the I/O substrate the log runs on. The default is
// the local filesystem; see MemFS for an in-memory alternative.
func FileSystem(fsys FS) Option {
	return func(l *Log) error {
		if fsys == nil {
			return errors.New("nil filesystem")
		}
		l.fsys = fsys
		return nil
	}
}
