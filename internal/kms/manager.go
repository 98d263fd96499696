// Package kms abstracts external Key Management Systems that wrap and
// unwrap the per-run data encryption key.
package kms

import "context"

// Manager wraps and unwraps data encryption keys. Implementations must
// never expose the plaintext master key and must perform the unwrap
// operation entirely within the KMS boundary where one exists.
type Manager interface {
	// Provider returns a short identifier used for diagnostics and
	// footer metadata (e.g. "local", "kmip").
	Provider() string

	// WrapKey encrypts plaintext (the run's DEK) and returns an
	// envelope suitable for persisting in the footer's metadata map.
	WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*Envelope, error)

	// UnwrapKey decrypts envelope and returns the plaintext DEK.
	UnwrapKey(ctx context.Context, envelope *Envelope, metadata map[string]string) ([]byte, error)

	// HealthCheck verifies the KMS is reachable without performing a
	// real wrap/unwrap.
	HealthCheck(ctx context.Context) error

	// Close releases underlying resources.
	Close(ctx context.Context) error
}

// Envelope captures what is needed to unwrap a DEK later.
type Envelope struct {
	KeyID      string
	Provider   string
	Ciphertext []byte
}
