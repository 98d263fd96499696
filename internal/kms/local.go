package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// LocalManager wraps DEKs with a single AES-256-GCM master key supplied
// at startup (e.g. from ADAPIPE_MASTER_KEY or a mounted key file). It
// exists so adapipe can run encrypted pipelines with no external KMS
// dependency; production deployments are expected to use KMIPManager.
type LocalManager struct {
	masterKey []byte
	keyID     string
}

// NewLocalManager constructs a LocalManager from a 32-byte master key.
func NewLocalManager(masterKey []byte, keyID string) (*LocalManager, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("local kms master key must be 32 bytes, got %d", len(masterKey))
	}
	if keyID == "" {
		keyID = "local-default"
	}
	return &LocalManager{masterKey: masterKey, keyID: keyID}, nil
}

func (m *LocalManager) Provider() string { return "local" }

func (m *LocalManager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (m *LocalManager) WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*Envelope, error) {
	aead, err := m.aead()
	if err != nil {
		return nil, fmt.Errorf("local kms: build aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("local kms: generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)
	return &Envelope{KeyID: m.keyID, Provider: m.Provider(), Ciphertext: ciphertext}, nil
}

func (m *LocalManager) UnwrapKey(ctx context.Context, envelope *Envelope, metadata map[string]string) ([]byte, error) {
	aead, err := m.aead()
	if err != nil {
		return nil, fmt.Errorf("local kms: build aead: %w", err)
	}
	if len(envelope.Ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("local kms: envelope too short")
	}
	nonce, ciphertext := envelope.Ciphertext[:aead.NonceSize()], envelope.Ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("local kms: unwrap: %w", err)
	}
	return plaintext, nil
}

func (m *LocalManager) HealthCheck(ctx context.Context) error { return nil }
func (m *LocalManager) Close(ctx context.Context) error       { return nil }
