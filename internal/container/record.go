package container

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kenneth/adapipe/internal/pipelineerr"
)

const nonceLen = 12

// EncodeRecord frames one chunk's transformed payload as
// nonce[12] || LE32 data_len || data. nonce must be exactly 12 bytes;
// pass a zero-filled slice when no encryption stage ran.
func EncodeRecord(nonce []byte, data []byte) ([]byte, error) {
	if len(nonce) != nonceLen {
		return nil, fmt.Errorf("record nonce must be %d bytes, got %d", nonceLen, len(nonce))
	}
	buf := make([]byte, 0, nonceLen+4+len(data))
	buf = append(buf, nonce...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, data...)
	return buf, nil
}

// Record is one decoded chunk record.
type Record struct {
	Nonce []byte
	Data  []byte
}

// ChunkReader streams records out of the chunk region of a container
// in order, stopping exactly at the footer boundary.
type ChunkReader struct {
	r         io.Reader
	remaining int64
}

// NewChunkReader wraps r, which must be positioned at the start of the
// chunk region; chunkRegionLen is file_size - footer_length.
func NewChunkReader(r io.Reader, chunkRegionLen int64) *ChunkReader {
	return &ChunkReader{r: r, remaining: chunkRegionLen}
}

// Next reads the next record, or returns io.EOF once the chunk region is
// exhausted.
func (cr *ChunkReader) Next() (Record, error) {
	if cr.remaining <= 0 {
		return Record{}, io.EOF
	}
	header := make([]byte, nonceLen+4)
	if err := cr.readFull(header); err != nil {
		return Record{}, pipelineerr.New(pipelineerr.IoError, "chunk-read", fmt.Errorf("read record header: %w", err))
	}
	nonce := header[:nonceLen]
	dataLen := binary.LittleEndian.Uint32(header[nonceLen:])
	data := make([]byte, dataLen)
	if dataLen > 0 {
		if err := cr.readFull(data); err != nil {
			return Record{}, pipelineerr.New(pipelineerr.IoError, "chunk-read", fmt.Errorf("read record data: %w", err))
		}
	}
	return Record{Nonce: nonce, Data: data}, nil
}

func (cr *ChunkReader) readFull(buf []byte) error {
	n, err := io.ReadFull(cr.r, buf)
	cr.remaining -= int64(n)
	return err
}
