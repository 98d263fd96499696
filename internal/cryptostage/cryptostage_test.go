package cryptostage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

func roundTrip(t *testing.T, svc stagesvc.Service, keyLen int) {
	t.Helper()
	key := make([]byte, keyLen)
	for i := range key {
		key[i] = byte(i)
	}
	km := &stagesvc.KeyMaterial{Key: key}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	c := chunk.Chunk{Sequence: 5, Offset: 100, Payload: plaintext, Final: false}

	fwdCtx := &stagesvc.Context{Key: km, Operation: stage.Forward}
	encrypted, err := svc.ProcessChunk(c, nil, fwdCtx)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, encrypted.Payload)
	assert.Len(t, fwdCtx.ChunkNonce, NonceSize)

	revCtx := &stagesvc.Context{Key: km, Operation: stage.Reverse, ChunkNonce: fwdCtx.ChunkNonce}
	decrypted, err := svc.ProcessChunk(encrypted, nil, revCtx)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted.Payload)
	assert.Equal(t, c.Sequence, decrypted.Sequence)
	assert.Equal(t, c.Offset, decrypted.Offset)
}

func TestAES256GCM_RoundTrip(t *testing.T) {
	roundTrip(t, NewAES256GCM(), 32)
}

func TestChaCha20Poly1305_RoundTrip(t *testing.T) {
	roundTrip(t, NewChaCha20Poly1305(), 32)
}

func TestAES256GCM_MissingKeyRejected(t *testing.T) {
	svc := NewAES256GCM()
	c := chunk.Chunk{Payload: []byte("x"), Final: true}
	_, err := svc.ProcessChunk(c, nil, &stagesvc.Context{Operation: stage.Forward})
	assert.Error(t, err)
}

func TestAES256GCM_TamperedCiphertextFailsAuthentication(t *testing.T) {
	key := make([]byte, 32)
	km := &stagesvc.KeyMaterial{Key: key}
	svc := NewAES256GCM()

	c := chunk.Chunk{Payload: []byte("authenticated data"), Final: true}
	fwdCtx := &stagesvc.Context{Key: km, Operation: stage.Forward}
	encrypted, err := svc.ProcessChunk(c, nil, fwdCtx)
	require.NoError(t, err)

	encrypted.Payload[0] ^= 0xFF
	revCtx := &stagesvc.Context{Key: km, Operation: stage.Reverse, ChunkNonce: fwdCtx.ChunkNonce}
	_, err = svc.ProcessChunk(encrypted, nil, revCtx)
	assert.Error(t, err, "tampered ciphertext must fail GCM authentication")
}

func TestPreferredAlgorithm_ReturnsKnownAlgorithm(t *testing.T) {
	alg := PreferredAlgorithm()
	assert.Contains(t, []string{"aes-256-gcm", "chacha20-poly1305"}, alg)
}
