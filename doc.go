// Package wal provides a disk-backed, queue-like write-ahead log.
//
// Producers append opaque byte payloads with Push, and a single consumer
// reads them back in strict append order with Pop. The consumer acknowledges
// completed work with Ack, or rewinds unacknowledged reads with Revert, which
// redelivers everything popped since the last Ack. Each entry is assigned a
// monotonic uint64 index at push time, and indexes keep increasing across
// restarts.
//
// Entries are stored in a directory of append-only chunk files. Each push is
// written and fsynced before it returns, so anything a successful Push
// reported is recoverable after a crash. When a chunk grows past its
// configured size, the log rolls over to a new chunk file; once every entry
// in an old chunk has been acknowledged, the file is unlinked. Opening a log
// scans each chunk to its last good frame boundary, discarding the partial
// tail a crash mid-append leaves behind.
//
// A *Log is single-owner: no method may be called concurrently. Callers that
// need to share one must serialize access themselves.
//
// Acknowledgements live in memory while the log is open. A clean Close
// records the acknowledged watermark in a marker file, and the next Open
// resumes delivery right after it. A crash leaves no marker, so reopening
// restarts from the oldest entry still on disk, and entries that were acked,
// but whose chunk had not yet been reclaimed, are delivered again. In other
// words: delivery is exactly-once within a process and across clean
// restarts, and at-least-once across crashes.
//
// For reading a log directory without taking ownership of it, for example
// from an inspection tool, see the Reader type.
package wal
