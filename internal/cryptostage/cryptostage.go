// Package cryptostage implements the Encryption stage services:
// AES-256-GCM and ChaCha20-Poly1305. They consume the per-chunk nonce
// via stagesvc.Context.ChunkNonce rather than inline with the payload.
package cryptostage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sys/cpu"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

const NonceSize = 12

// HasAESHardwareSupport reports whether this CPU has native AES
// instructions.
func HasAESHardwareSupport() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

// PreferredAlgorithm picks aes-256-gcm when the host has AES hardware
// acceleration and chacha20-poly1305 otherwise.
func PreferredAlgorithm() string {
	if HasAESHardwareSupport() {
		return "aes-256-gcm"
	}
	return "chacha20-poly1305"
}

type aesGCMService struct{}

func NewAES256GCM() stagesvc.Service { return aesGCMService{} }

func (aesGCMService) Algorithm() string       { return "aes-256-gcm" }
func (aesGCMService) Kind() stage.Kind        { return stage.Encryption }
func (aesGCMService) SupportsForward() bool   { return true }
func (aesGCMService) SupportsReverse() bool   { return true }
func (aesGCMService) ParallelSafe() bool      { return true }

func (aesGCMService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	aead, err := newAEAD(sc, func(key []byte) (cipher.AEAD, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	})
	if err != nil {
		return chunk.Chunk{}, err
	}
	return processAEAD(c, aead, sc)
}

type chacha20Service struct{}

func NewChaCha20Poly1305() stagesvc.Service { return chacha20Service{} }

func (chacha20Service) Algorithm() string     { return "chacha20-poly1305" }
func (chacha20Service) Kind() stage.Kind      { return stage.Encryption }
func (chacha20Service) SupportsForward() bool { return true }
func (chacha20Service) SupportsReverse() bool { return true }
func (chacha20Service) ParallelSafe() bool    { return true }

func (chacha20Service) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	aead, err := newAEAD(sc, chacha20poly1305.New)
	if err != nil {
		return chunk.Chunk{}, err
	}
	return processAEAD(c, aead, sc)
}

func newAEAD(sc *stagesvc.Context, build func(key []byte) (cipher.AEAD, error)) (cipher.AEAD, error) {
	if sc == nil || sc.Key == nil {
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, "encryption", fmt.Errorf("no key material supplied to encryption stage"))
	}
	aead, err := build(sc.Key.Key)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, "encryption", fmt.Errorf("construct aead: %w", err))
	}
	return aead, nil
}

// processAEAD handles both directions: Forward generates a fresh nonce
// and stores it on sc.ChunkNonce for the framing layer to persist;
// Reverse reads the nonce the framing layer already placed there.
func processAEAD(c chunk.Chunk, aead cipher.AEAD, sc *stagesvc.Context) (chunk.Chunk, error) {
	if sc.Operation != stage.Reverse {
		nonce := make([]byte, NonceSize)
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return chunk.Chunk{}, pipelineerr.New(pipelineerr.InternalError, "encryption", fmt.Errorf("generate nonce: %w", err))
		}
		sc.ChunkNonce = nonce
		ciphertext := aead.Seal(nil, nonce, c.Payload, nil)
		return c.WithPayload(ciphertext), nil
	}

	if len(sc.ChunkNonce) != NonceSize {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.InvalidConfiguration, "encryption", fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(sc.ChunkNonce)))
	}
	plaintext, err := aead.Open(nil, sc.ChunkNonce, c.Payload, nil)
	if err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, "encryption", fmt.Errorf("aead open: %w", err))
	}
	return c.WithPayload(plaintext), nil
}
