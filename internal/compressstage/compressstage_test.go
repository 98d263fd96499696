package compressstage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

func roundTrip(t *testing.T, svc interface {
	ProcessChunk(chunk.Chunk, map[string]string, *stagesvc.Context) (chunk.Chunk, error)
}, payload []byte, params map[string]string) {
	t.Helper()
	c := chunk.Chunk{Sequence: 0, Payload: payload, Final: true}

	encoded, err := svc.ProcessChunk(c, params, &stagesvc.Context{Operation: stage.Forward})
	require.NoError(t, err)

	decoded, err := svc.ProcessChunk(encoded, params, &stagesvc.Context{Operation: stage.Reverse})
	require.NoError(t, err)

	assert.Equal(t, payload, decoded.Payload)
	assert.Equal(t, c.Sequence, decoded.Sequence)
	assert.Equal(t, c.Final, decoded.Final)
}

func TestGzip_RoundTrip(t *testing.T) {
	roundTrip(t, NewGzip().(gzipService), bytes.Repeat([]byte("payload-data "), 200), nil)
	roundTrip(t, NewGzip().(gzipService), []byte{}, map[string]string{"level": "9"})
}

func TestGzip_InvalidLevelRejected(t *testing.T) {
	svc := NewGzip().(gzipService)
	c := chunk.Chunk{Payload: []byte("x"), Final: true}
	_, err := svc.ProcessChunk(c, map[string]string{"level": "not-a-number"}, &stagesvc.Context{Operation: stage.Forward})
	assert.Error(t, err)
}

func TestGzip_DecodeRejectsGarbage(t *testing.T) {
	svc := NewGzip().(gzipService)
	c := chunk.Chunk{Payload: []byte("not gzip data"), Final: true}
	_, err := svc.ProcessChunk(c, nil, &stagesvc.Context{Operation: stage.Reverse})
	assert.Error(t, err)
}

func TestZstd_RoundTrip(t *testing.T) {
	roundTrip(t, NewZstd().(zstdService), bytes.Repeat([]byte("abc123"), 500), nil)
}

func TestSnappy_RoundTrip(t *testing.T) {
	roundTrip(t, NewSnappy().(snappyService), []byte("some snappy compressible text text text"), nil)
}

func TestSnappy_DecodeRejectsGarbage(t *testing.T) {
	svc := NewSnappy().(snappyService)
	c := chunk.Chunk{Payload: []byte{0xff, 0xff, 0xff}, Final: true}
	_, err := svc.ProcessChunk(c, nil, &stagesvc.Context{Operation: stage.Reverse})
	assert.Error(t, err)
}
