package wal

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// frameHeaderSize is the width of the length prefix preceding every payload.
const frameHeaderSize = 8

var (
	// errEndOfChunk is returned by readFrame when there are not enough
	// bytes left for a length prefix. It marks the clean tail of a chunk.
	errEndOfChunk = errors.New("end of chunk")

	// errTruncatedFrame is returned by readFrame when a length prefix
	// promises more payload bytes than the chunk holds. This is the
	// expected shape of a crash mid-append.
	errTruncatedFrame = errors.New("truncated frame")
)

// encodeFrame renders payload as an on-disk frame: a big-endian uint64
// length followed by the raw payload bytes. Zero-length payloads are legal
// and encode to a bare length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint64(buf[:frameHeaderSize], uint64(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	return buf
}

// frameSize returns the number of bytes a payload of length n occupies
// on disk.
func frameSize(n int) int64 {
	return frameHeaderSize + int64(n)
}

// readFrame decodes one frame from r. The remaining argument bounds how many
// bytes are available at the current position; it is what lets a short frame
// be recognized without waiting on a blocking read.
//
// The returned int64 is the total number of bytes the frame occupies,
// header included.
func readFrame(r io.Reader, remaining int64) ([]byte, int64, error) {
	if remaining < frameHeaderSize {
		return nil, 0, errEndOfChunk
	}

	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, errors.Wrap(err, "read frame header")
	}

	n := binary.BigEndian.Uint64(header[:])
	if n > uint64(remaining-frameHeaderSize) {
		return nil, 0, errTruncatedFrame
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, errors.Wrap(err, "read frame payload")
	}
	return payload, frameSize(int(n)), nil
}
