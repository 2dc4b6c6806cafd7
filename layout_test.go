package wal

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChunkFileName(t *testing.T) {
	for _, tt := range []struct {
		id, baseIndex uint64
		want          string
	}{
		{0, 0, "0000000000000000-0000000000000000.chunk"},
		{1, 42, "0000000000000001-0000000000000042.chunk"},
		{12345, 9999999, "0000000000012345-0000000009999999.chunk"},
	} {
		if got := chunkFileName(tt.id, tt.baseIndex); got != tt.want {
			t.Errorf("chunkFileName(%d, %d): want=%q got=%q", tt.id, tt.baseIndex, tt.want, got)
		}

		id, base, ok := parseChunkFileName(tt.want)
		if !ok {
			t.Errorf("parseChunkFileName(%q): not recognized", tt.want)
		}
		if id != tt.id || base != tt.baseIndex {
			t.Errorf("parseChunkFileName(%q): want=(%d, %d) got=(%d, %d)",
				tt.want, tt.id, tt.baseIndex, id, base)
		}
	}
}

func TestParseChunkFileNameRejects(t *testing.T) {
	names := []string{
		"",
		"ack.marker",
		"0000000000000000-0000000000000000",       // no extension
		"0000000000000000.chunk",                  // missing base index
		"000000000000000-0000000000000000.chunk",  // short id
		"0000000000000000x0000000000000000.chunk", // wrong separator
		"000000000000000a-0000000000000000.chunk", // non-decimal
		"0000000000000000-0000000000000000.wal",
	}
	for _, name := range names {
		if _, _, ok := parseChunkFileName(name); ok {
			t.Errorf("parseChunkFileName(%q): want rejection", name)
		}
	}
}

func TestListChunkFiles(t *testing.T) {
	fsys := NewMemFS()
	if err := fsys.MkdirAll("q", 0755); err != nil {
		t.Fatal(err)
	}

	// Chunk files, plus the sibling files a live log directory carries.
	names := []string{
		chunkFileName(2, 20),
		chunkFileName(0, 0),
		chunkFileName(1, 7),
		"ack.marker",
		"notes.txt",
	}
	for _, name := range names {
		f, err := fsys.OpenFile("q/"+name, os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	infos, err := listChunkFiles(fsys, "q")
	if err != nil {
		t.Fatal(err)
	}

	want := []chunkFileInfo{
		{id: 0, baseIndex: 0, name: chunkFileName(0, 0)},
		{id: 1, baseIndex: 7, name: chunkFileName(1, 7)},
		{id: 2, baseIndex: 20, name: chunkFileName(2, 20)},
	}
	if diff := cmp.Diff(want, infos, cmp.AllowUnexported(chunkFileInfo{})); diff != "" {
		t.Errorf("chunk file infos (-want +got):\n%s", diff)
	}
}
