package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NonFinalMustMatchChunkSize(t *testing.T) {
	_, err := New(0, 0, make([]byte, 10), false, 16)
	require.Error(t, err)

	c, err := New(0, 0, make([]byte, 16), false, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Sequence)
	assert.False(t, c.Final)
}

func TestNew_FinalMayBeShorter(t *testing.T) {
	c, err := New(3, 48, make([]byte, 5), true, 16)
	require.NoError(t, err)
	assert.True(t, c.Final)
	assert.Len(t, c.Payload, 5)

	_, err = New(3, 48, make([]byte, 20), true, 16)
	assert.Error(t, err, "final chunk longer than chunk size must be rejected")
}

func TestWithPayload_PreservesIdentity(t *testing.T) {
	c := Chunk{Sequence: 2, Offset: 32, Payload: []byte("abc"), Final: true}
	out := c.WithPayload([]byte("xyz"))
	assert.Equal(t, c.Sequence, out.Sequence)
	assert.Equal(t, c.Offset, out.Offset)
	assert.Equal(t, c.Final, out.Final)
	assert.Equal(t, []byte("xyz"), out.Payload)
}

func TestSameIdentity(t *testing.T) {
	a := Chunk{Sequence: 1, Offset: 16, Final: false, Payload: []byte("a")}
	b := Chunk{Sequence: 1, Offset: 16, Final: false, Payload: []byte("different")}
	assert.True(t, SameIdentity(a, b))

	c := Chunk{Sequence: 2, Offset: 16, Final: false, Payload: []byte("a")}
	assert.False(t, SameIdentity(a, c))
}
