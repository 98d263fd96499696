package container

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/kenneth/adapipe/internal/pipelineerr"
)

// RecordTask is one record pending write, submitted by a worker once its
// chunk has finished the full stage chain.
type RecordTask struct {
	Sequence uint64
	Record   []byte // pre-framed via EncodeRecord
}

// SequentialWriter consumes records out of order but writes them in
// strict sequence order, producing the densely packed chunk region the
// format requires: workers race ahead and park their result in the
// pending map; every Submit drains the dense run starting at the next
// expected sequence, so out-of-order completion never reorders the
// bytes on disk.
type SequentialWriter struct {
	w       io.Writer
	hash    hash.Hash
	next    uint64
	pending map[uint64][]byte
	written uint64
}

// NewSequentialWriter wraps the destination writer, which should be
// positioned at the start of the chunk region.
func NewSequentialWriter(w io.Writer) *SequentialWriter {
	return &SequentialWriter{
		w:       w,
		hash:    sha256.New(),
		pending: make(map[uint64][]byte),
	}
}

// Submit delivers a completed record for sequence. Records may arrive in
// any order; Submit flushes every record it now has a dense run for.
func (sw *SequentialWriter) Submit(sequence uint64, record []byte) error {
	sw.pending[sequence] = record
	for {
		rec, ok := sw.pending[sw.next]
		if !ok {
			return nil
		}
		if _, err := sw.w.Write(rec); err != nil {
			return pipelineerr.New(pipelineerr.IoError, "chunk-write", fmt.Errorf("write chunk record %d: %w", sw.next, err))
		}
		if _, err := sw.hash.Write(rec); err != nil {
			return pipelineerr.New(pipelineerr.InternalError, "chunk-write", fmt.Errorf("hash chunk record %d: %w", sw.next, err))
		}
		sw.written += uint64(len(rec))
		delete(sw.pending, sw.next)
		sw.next++
	}
}

// Pending reports how many records are buffered waiting for a gap to
// close. Callers may use this to bound memory when workers race far
// ahead of the writer.
func (sw *SequentialWriter) Pending() int { return len(sw.pending) }

// BytesWritten returns the number of chunk-region bytes written so far.
func (sw *SequentialWriter) BytesWritten() uint64 { return sw.written }

// OutputChecksum returns the lowercase hex SHA-256 of every byte written
// so far. It is only meaningful once every expected sequence has been
// submitted (Pending() == 0).
func (sw *SequentialWriter) OutputChecksum() string {
	return hex.EncodeToString(sw.hash.Sum(nil))
}
