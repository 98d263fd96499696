// Package chunk defines the unit of work that flows through the
// pipeline: a sequenced, offset-addressed slice of a file.
package chunk

import "fmt"

// Chunk is an ordered slice of a file. Sequence and Offset are assigned
// once by the reader and never change; Payload is replaced by each
// stage the chunk passes through.
type Chunk struct {
	Sequence uint64
	Offset   uint64
	Payload  []byte
	Final    bool
}

// New constructs a chunk, enforcing the data-model invariant that only
// the final chunk of a run may be shorter than chunkSize.
func New(sequence, offset uint64, payload []byte, final bool, chunkSize uint32) (Chunk, error) {
	c := Chunk{Sequence: sequence, Offset: offset, Payload: payload, Final: final}
	if err := c.checkSizeInvariant(chunkSize); err != nil {
		return Chunk{}, err
	}
	return c, nil
}

func (c Chunk) checkSizeInvariant(chunkSize uint32) error {
	if !c.Final && uint32(len(c.Payload)) != chunkSize {
		return fmt.Errorf("chunk %d: non-final chunk has payload length %d, want %d", c.Sequence, len(c.Payload), chunkSize)
	}
	if c.Final && uint32(len(c.Payload)) > chunkSize {
		return fmt.Errorf("chunk %d: final chunk payload length %d exceeds chunk size %d", c.Sequence, len(c.Payload), chunkSize)
	}
	return nil
}

// WithPayload returns a copy of c with a new payload, preserving
// Sequence, Offset and Final — the only mutation an executor stage is
// permitted to make.
func (c Chunk) WithPayload(payload []byte) Chunk {
	return Chunk{Sequence: c.Sequence, Offset: c.Offset, Payload: payload, Final: c.Final}
}

// SameIdentity reports whether two chunks carry the same Sequence,
// Offset and Final — used by the executor to detect a stage service
// that corrupted chunk identity.
func SameIdentity(a, b Chunk) bool {
	return a.Sequence == b.Sequence && a.Offset == b.Offset && a.Final == b.Final
}
