package wal

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// chunkFileExt is the extension shared by every chunk file in a log
// directory.
const chunkFileExt = ".chunk"

// chunkFileName formats the on-disk name for a chunk. Both components are
// zero-padded decimal so that a lexicographic directory listing yields
// chunks in creation order.
func chunkFileName(id, baseIndex uint64) string {
	return fmt.Sprintf("%016d-%016d%s", id, baseIndex, chunkFileExt)
}

// parseChunkFileName extracts the chunk id and base index from a file name
// produced by chunkFileName. The second return value reports whether name
// matches the naming schema at all; files that do not match are ignored by
// enumeration, leaving room for sibling metadata or lock files.
func parseChunkFileName(name string) (id, baseIndex uint64, ok bool) {
	if filepath.Ext(name) != chunkFileExt {
		return 0, 0, false
	}
	stem := name[:len(name)-len(chunkFileExt)]
	if len(stem) != 33 || stem[16] != '-' {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(stem[:16], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	baseIndex, err = strconv.ParseUint(stem[17:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return id, baseIndex, true
}

// chunkFileInfo pairs a chunk's identity with the name of the file that
// holds it.
type chunkFileInfo struct {
	id        uint64
	baseIndex uint64
	name      string
}

// listChunkFiles enumerates the chunk files in dir, ascending by chunk id.
// Files that do not match the naming schema are skipped.
func listChunkFiles(fsys FS, dir string) ([]chunkFileInfo, error) {
	names, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "list chunk files")
	}

	var infos []chunkFileInfo
	for _, name := range names {
		id, base, ok := parseChunkFileName(name)
		if !ok {
			continue
		}
		infos = append(infos, chunkFileInfo{id: id, baseIndex: base, name: name})
	}
	return infos, nil
}
