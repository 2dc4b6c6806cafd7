package wal

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemFS is an FS implementation that only stores data in memory. It is
// useful for tests, and for ephemeral queues that do not need to survive the
// process.
type MemFS struct {
	mu    sync.RWMutex
	dirs  map[string]bool
	files map[string]*memFile
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{
		dirs:  make(map[string]bool),
		files: make(map[string]*memFile),
	}
}

type memFile struct {
	data []byte
}

func (m *MemFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	f, exists := m.files[name]
	switch {
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
	case !exists && flag&os.O_CREATE == 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	case !exists:
		f = &memFile{}
		m.files[name] = f
	}
	if flag&os.O_TRUNC != 0 {
		f.data = nil
	}
	return &memHandle{fs: m, f: f}, nil
}

func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if _, ok := m.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

func (m *MemFS) Rename(oldname, newname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldname = filepath.Clean(oldname)
	newname = filepath.Clean(newname)
	f, ok := m.files[oldname]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrNotExist}
	}
	delete(m.files, oldname)
	m.files[newname] = f
	return nil
}

func (m *MemFS) MkdirAll(name string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[filepath.Clean(name)] = true
	return nil
}

func (m *MemFS) ReadDir(name string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if !m.dirs[name] {
		return nil, &os.PathError{Op: "readdir", Path: name, Err: os.ErrNotExist}
	}
	var names []string
	for path := range m.files {
		if filepath.Dir(path) == name {
			names = append(names, filepath.Base(path))
		}
	}
	sort.Strings(names)
	return names, nil
}

// SyncDir is a no-op: there is nothing more durable for memory to flush to.
func (m *MemFS) SyncDir(name string) error {
	return nil
}

// memHandle is one open handle on a memFile, with its own file position.
type memHandle struct {
	fs     *MemFS
	f      *memFile
	pos    int64
	closed bool
}

func (h *memHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()

	if h.pos >= int64(len(h.f.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.f.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *memHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if grow := h.pos + int64(len(p)) - int64(len(h.f.data)); grow > 0 {
		h.f.data = append(h.f.data, make([]byte, grow)...)
	}
	copy(h.f.data[h.pos:], p)
	h.pos += int64(len(p))
	return len(p), nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = h.pos + offset
	case io.SeekEnd:
		pos = int64(len(h.f.data)) + offset
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	h.pos = pos
	return pos, nil
}

func (h *memHandle) Sync() error {
	if h.closed {
		return os.ErrClosed
	}
	return nil
}

func (h *memHandle) Truncate(size int64) error {
	if h.closed {
		return os.ErrClosed
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if size < 0 {
		return errors.New("negative size")
	}
	if size <= int64(len(h.f.data)) {
		h.f.data = h.f.data[:size]
		return nil
	}
	h.f.data = append(h.f.data, make([]byte, size-int64(len(h.f.data)))...)
	return nil
}

func (h *memHandle) Close() error {
	if h.closed {
		return os.ErrClosed
	}
	h.closed = true
	return nil
}
