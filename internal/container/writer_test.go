package container

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialWriter_OutOfOrderSubmitProducesDenseInOrderOutput(t *testing.T) {
	var buf bytes.Buffer
	sw := NewSequentialWriter(&buf)

	nonce := bytes.Repeat([]byte{0x00}, nonceLen)
	rec0, _ := EncodeRecord(nonce, []byte("zero"))
	rec1, _ := EncodeRecord(nonce, []byte("one"))
	rec2, _ := EncodeRecord(nonce, []byte("two"))

	require.NoError(t, sw.Submit(2, rec2))
	assert.Equal(t, 1, sw.Pending(), "sequence 2 arrives first and must wait for 0 and 1")
	assert.Equal(t, uint64(0), sw.BytesWritten())

	require.NoError(t, sw.Submit(0, rec0))
	assert.Equal(t, uint64(len(rec0)), sw.BytesWritten())

	require.NoError(t, sw.Submit(1, rec1))
	assert.Equal(t, 0, sw.Pending())
	assert.Equal(t, uint64(len(rec0)+len(rec1)+len(rec2)), sw.BytesWritten())

	want := append(append(append([]byte{}, rec0...), rec1...), rec2...)
	assert.Equal(t, want, buf.Bytes())

	sum := sha256.Sum256(want)
	assert.Equal(t, hex.EncodeToString(sum[:]), sw.OutputChecksum())
}
