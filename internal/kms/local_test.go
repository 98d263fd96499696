package kms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalManager_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewLocalManager(make([]byte, 16), "k1")
	assert.Error(t, err)
}

func TestNewLocalManager_DefaultsKeyID(t *testing.T) {
	m, err := NewLocalManager(make([]byte, 32), "")
	require.NoError(t, err)
	assert.Equal(t, "local-default", m.keyID)
}

func TestLocalManager_WrapUnwrapRoundTrip(t *testing.T) {
	m, err := NewLocalManager(make([]byte, 32), "k1")
	require.NoError(t, err)

	dek := []byte("0123456789abcdef0123456789abcdef")
	env, err := m.WrapKey(context.Background(), dek, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", env.Provider)
	assert.Equal(t, "k1", env.KeyID)

	plaintext, err := m.UnwrapKey(context.Background(), env, nil)
	require.NoError(t, err)
	assert.Equal(t, dek, plaintext)
}

func TestLocalManager_UnwrapRejectsTamperedCiphertext(t *testing.T) {
	m, err := NewLocalManager(make([]byte, 32), "k1")
	require.NoError(t, err)

	env, err := m.WrapKey(context.Background(), []byte("secret-key-material"), nil)
	require.NoError(t, err)
	env.Ciphertext[len(env.Ciphertext)-1] ^= 0xFF

	_, err = m.UnwrapKey(context.Background(), env, nil)
	assert.Error(t, err)
}

func TestLocalManager_HealthCheckAlwaysOK(t *testing.T) {
	m, err := NewLocalManager(make([]byte, 32), "k1")
	require.NoError(t, err)
	assert.NoError(t, m.HealthCheck(context.Background()))
	assert.NoError(t, m.Close(context.Background()))
}
