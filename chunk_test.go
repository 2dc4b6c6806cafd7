package wal

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"testing"

	"github.com/pkg/errors"
)

func TestChunkPushPop(t *testing.T) {
	fsys := NewMemFS()
	c, err := createChunk(fsys, "q", 0, 0, 1048576)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		index, err := c.push([]byte(strconv.Itoa(i) + ".hello"))
		if err != nil {
			t.Fatal(err)
		}
		if index != uint64(i) {
			t.Errorf("push index: want=%d got=%d", i, index)
		}
	}

	for i := 0; i < 10; i++ {
		entry, err := c.pop()
		if err != nil {
			t.Fatal(err)
		}
		if entry == nil {
			t.Fatalf("pop %d: unexpected nil entry", i)
		}
		if entry.Index != uint64(i) {
			t.Errorf("pop index: want=%d got=%d", i, entry.Index)
		}
		if want := []byte(strconv.Itoa(i) + ".hello"); !bytes.Equal(entry.Data, want) {
			t.Errorf("pop data: want=%q got=%q", want, entry.Data)
		}
	}

	if entry, err := c.pop(); err != nil || entry != nil {
		t.Errorf("pop past tail: want=(nil, nil) got=(%v, %v)", entry, err)
	}
}

func TestChunkAckRevert(t *testing.T) {
	fsys := NewMemFS()
	c, err := createChunk(fsys, "q", 0, 0, 1048576)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		if _, err := c.push([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	// Read three, ack them, read two more, then revert.
	for i := 0; i < 3; i++ {
		if _, err := c.pop(); err != nil {
			t.Fatal(err)
		}
	}
	c.ack()
	for i := 0; i < 2; i++ {
		if _, err := c.pop(); err != nil {
			t.Fatal(err)
		}
	}
	c.revert()

	// The two unacked reads come back, followed by the final entry.
	for i := 3; i < 6; i++ {
		entry, err := c.pop()
		if err != nil {
			t.Fatal(err)
		}
		if entry == nil || entry.Index != uint64(i) {
			t.Fatalf("pop after revert: want index %d, got %+v", i, entry)
		}
	}
}

func TestChunkFull(t *testing.T) {
	fsys := NewMemFS()
	c, err := createChunk(fsys, "q", 0, 0, 20)
	if err != nil {
		t.Fatal(err)
	}

	// 12-byte frames; the second push crosses the 20-byte limit but still
	// succeeds, and only then is the chunk marked full.
	if _, err := c.push([]byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if c.full {
		t.Error("chunk full before limit crossed")
	}
	if _, err := c.push([]byte("efgh")); err != nil {
		t.Fatal(err)
	}
	if !c.full {
		t.Error("chunk not full after limit crossed")
	}
}

func TestChunkRecover(t *testing.T) {
	fsys := NewMemFS()
	c, err := createChunk(fsys, "q", 3, 100, 1048576)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := c.push([]byte("payload-" + strconv.Itoa(i))); err != nil {
			t.Fatal(err)
		}
	}
	boundary := c.writeOffset
	if err := c.close(); err != nil {
		t.Fatal(err)
	}

	info := chunkFileInfo{id: 3, baseIndex: 100, name: chunkFileName(3, 100)}

	t.Run("clean", func(t *testing.T) {
		r, err := openChunk(fsys, "q", info, 1048576)
		if err != nil {
			t.Fatal(err)
		}
		defer r.close()

		if r.entries != 5 {
			t.Errorf("entries: want=5 got=%d", r.entries)
		}
		if r.writeOffset != boundary {
			t.Errorf("write offset: want=%d got=%d", boundary, r.writeOffset)
		}
		entry, err := r.pop()
		if err != nil {
			t.Fatal(err)
		}
		if entry == nil || entry.Index != 100 {
			t.Fatalf("first entry after recovery: want index 100, got %+v", entry)
		}
	})

	appendGarbage := func(t *testing.T, garbage []byte) {
		f, err := fsys.OpenFile("q/"+info.name, os.O_RDWR, 0644)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(garbage); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("short tail", func(t *testing.T) {
		// A crash can leave fewer bytes than a length prefix.
		appendGarbage(t, []byte{0x01, 0x02, 0x03})

		r, err := openChunk(fsys, "q", info, 1048576)
		if err != nil {
			t.Fatal(err)
		}
		defer r.close()

		if r.entries != 5 {
			t.Errorf("entries: want=5 got=%d", r.entries)
		}
		if r.writeOffset != boundary {
			t.Errorf("write offset: want=%d got=%d", boundary, r.writeOffset)
		}
	})

	t.Run("partial frame", func(t *testing.T) {
		// Or a header promising more payload than ever hit the disk.
		frame := encodeFrame([]byte("never finished"))
		appendGarbage(t, frame[:len(frame)-4])

		r, err := openChunk(fsys, "q", info, 1048576)
		if err != nil {
			t.Fatal(err)
		}
		defer r.close()

		if r.entries != 5 {
			t.Errorf("entries: want=5 got=%d", r.entries)
		}
		if r.writeOffset != boundary {
			t.Errorf("write offset: want=%d got=%d", boundary, r.writeOffset)
		}

		// Recovery truncated the file back to the frame boundary, so a
		// third open sees no garbage to cut.
		f, err := fsys.OpenFile("q/"+info.name, os.O_RDWR, 0644)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			t.Fatal(err)
		}
		if size != boundary {
			t.Errorf("file size after recovery: want=%d got=%d", boundary, size)
		}
	})
}

// failFS wraps an FS and makes every file's Sync fail once armed.
type failFS struct {
	FS
	failSync bool
}

func (f *failFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &failFile{File: file, fs: f}, nil
}

type failFile struct {
	File
	fs *failFS
}

func (f *failFile) Sync() error {
	if f.fs.failSync {
		return errors.New("sync failed")
	}
	return f.File.Sync()
}

func TestChunkPoisoned(t *testing.T) {
	fsys := &failFS{FS: NewMemFS()}
	c, err := createChunk(fsys, "q", 0, 0, 1048576)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.push([]byte("ok")); err != nil {
		t.Fatal(err)
	}

	fsys.failSync = true
	if _, err := c.push([]byte("doomed")); err == nil {
		t.Fatal("push succeeded despite sync failure")
	}
	if !c.poisoned {
		t.Error("chunk not poisoned after sync failure")
	}

	// The failed push did not advance any state.
	if c.entries != 1 {
		t.Errorf("entries after failed push: want=1 got=%d", c.entries)
	}

	fsys.failSync = false
	if _, err := c.push([]byte("still doomed")); errors.Cause(err) != ErrPoisoned {
		t.Errorf("push on poisoned chunk: want ErrPoisoned, got %v", err)
	}

	// Reads keep working; only the write path is invalidated.
	entry, err := c.pop()
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || !bytes.Equal(entry.Data, []byte("ok")) {
		t.Errorf("pop on poisoned chunk: want %q, got %+v", "ok", entry)
	}
}

func TestChunkSeekToEntry(t *testing.T) {
	fsys := NewMemFS()
	c, err := createChunk(fsys, "q", 0, 50, 1048576)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := c.push(bytes.Repeat([]byte("x"), i+1)); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.seekToEntry(3); err != nil {
		t.Fatal(err)
	}
	entry, err := c.pop()
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Index != 53 || len(entry.Data) != 4 {
		t.Fatalf("pop after seek: want index 53 with 4 bytes, got %+v", entry)
	}

	// k past the end clamps to the tail.
	if err := c.seekToEntry(99); err != nil {
		t.Fatal(err)
	}
	if entry, err := c.pop(); err != nil || entry != nil {
		t.Errorf("pop after clamped seek: want=(nil, nil) got=(%v, %v)", entry, err)
	}
}
