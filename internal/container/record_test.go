package container

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRecord_RejectsWrongNonceLength(t *testing.T) {
	_, err := EncodeRecord([]byte("short"), []byte("data"))
	assert.Error(t, err)
}

func TestChunkReader_RoundTripsMultipleRecords(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x01}, nonceLen)
	rec1, err := EncodeRecord(nonce, []byte("first"))
	require.NoError(t, err)
	rec2, err := EncodeRecord(nonce, []byte("second-record"))
	require.NoError(t, err)

	region := append(append([]byte{}, rec1...), rec2...)
	cr := NewChunkReader(bytes.NewReader(region), int64(len(region)))

	r1, err := cr.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), r1.Data)

	r2, err := cr.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("second-record"), r2.Data)

	_, err = cr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestChunkReader_EmptyRegion(t *testing.T) {
	cr := NewChunkReader(bytes.NewReader(nil), 0)
	_, err := cr.Next()
	assert.Equal(t, io.EOF, err)
}
