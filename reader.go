package wal

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Reader sequentially reads every entry in a log directory, without opening
// a *Log and without mutating anything on disk. It is meant for replay and
// inspection: a Reader never truncates partial tails, never reclaims chunks,
// and can be pointed at a directory that a crashed process left behind.
//
// A Reader must not be used while a *Log has the same directory open.
// It is not safe to call a Reader from multiple goroutines.
//
// Example:
//
//	r := NewReader(dir)
//	for r.Next() {
//		fmt.Println(r.Index(), len(r.Data()))
//	}
//	if err := r.Err(); err != nil {
//		log.Fatal(err)
//	}
type Reader struct {
	fsys FS
	dir  string

	infos  []chunkFileInfo
	loaded bool
	cur    int

	f         File
	remaining int64
	nextIndex uint64

	index uint64
	data  []byte
	err   error
}

// NewReader returns a *Reader over the chunk files in dir on the local
// filesystem.
func NewReader(dir string) *Reader {
	return NewReaderFS(osFS{}, dir)
}

// NewReaderFS returns a *Reader over the chunk files in dir on fsys.
func NewReaderFS(fsys FS, dir string) *Reader {
	return &Reader{fsys: fsys, dir: dir}
}

// Next advances the reader to the next entry, loading the next chunk file
// when the current one runs out. It returns false when every entry has been
// read, or when an error occurred; the two are told apart with Err.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	if !r.loaded {
		infos, err := listChunkFiles(r.fsys, r.dir)
		if err != nil {
			r.err = err
			return false
		}
		r.infos = infos
		r.loaded = true
	}

	for {
		if r.f == nil {
			if r.cur >= len(r.infos) {
				return false
			}
			if err := r.openChunkFile(r.infos[r.cur]); err != nil {
				r.err = err
				return false
			}
			r.cur++
		}

		payload, n, err := readFrame(r.f, r.remaining)
		switch err {
		case nil:
			r.remaining -= n
			r.index = r.nextIndex
			r.nextIndex++
			r.data = payload
			return true
		case errEndOfChunk, errTruncatedFrame:
			// Done with this chunk; a partial tail is discarded,
			// just as recovery would.
			r.closeChunkFile()
		default:
			r.err = err
			return false
		}
	}
}

func (r *Reader) openChunkFile(info chunkFileInfo) error {
	path := filepath.Join(r.dir, info.name)
	f, err := r.fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "open chunk %s", path)
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return errors.Wrap(err, "seek end")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return errors.Wrap(err, "seek start")
	}

	r.f = f
	r.remaining = size
	r.nextIndex = info.baseIndex
	return nil
}

func (r *Reader) closeChunkFile() {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
}

// Index returns the index of the current entry. Successive calls to Index,
// without calling Next, return the same value.
func (r *Reader) Index() uint64 {
	return r.index
}

// Data returns the payload of the current entry. Successive calls to Data,
// without calling Next, return the same slice.
func (r *Reader) Data() []byte {
	return r.data
}

// Err returns the first error encountered by the Reader.
func (r *Reader) Err() error {
	if r.err != nil {
		return errors.Wrap(r.err, "wal reader")
	}
	return nil
}

// Close releases the chunk file the Reader currently holds open. It is safe
// to call Close at any point, including after Next has returned false.
func (r *Reader) Close() error {
	r.closeChunkFile()
	return nil
}
