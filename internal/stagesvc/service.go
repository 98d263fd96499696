// Package stagesvc defines the stage-service contract: the
// boundary between the pipeline engine and concrete algorithm
// implementations (compression, encryption, checksum, transform codecs).
package stagesvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stage"
)

// KeyMaterial carries the data-encryption key used by encryption
// services. It is never persisted in container metadata — only the
// per-chunk nonce is, via ChunkNonce on Context.
type KeyMaterial struct {
	Key       []byte
	Salt      []byte
	Algorithm string
}

// SecurityContext identifies the principal a run executes for. Stage
// services read it, never write it.
type SecurityContext struct {
	Identity    string
	Permissions []string
	Sensitivity string
}

// Context is the light, per-chunk-task snapshot a stage service
// receives. ChunkNonce is the one mutable field: an encryption service
// sets it on Forward so the framing layer can persist it; the framing
// layer sets it on Reverse so the service can decrypt without reading
// it from the payload.
type Context struct {
	Ctx        context.Context
	Key        *KeyMaterial
	Security   *SecurityContext
	ChunkNonce []byte
	Operation  stage.Operation
}

// Service implements one algorithm for one stage kind.
type Service interface {
	Algorithm() string
	Kind() stage.Kind
	SupportsForward() bool
	SupportsReverse() bool
	ParallelSafe() bool
	ProcessChunk(c chunk.Chunk, params map[string]string, sc *Context) (chunk.Chunk, error)
}

// Registry maps algorithm name to implementation. It is immutable
// after construction is complete; Register is only called during
// start-up wiring.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

func (r *Registry) Register(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.Algorithm()] = s
}

func (r *Registry) Lookup(algorithm string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[algorithm]
	return s, ok
}

// Resolve looks up the service for a stage and checks the requested
// operation is supported, failing fast before any chunk is touched.
func (r *Registry) Resolve(st stage.Stage) (Service, error) {
	svc, ok := r.Lookup(st.Algorithm)
	if !ok {
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, st.Algorithm, fmt.Errorf("no stage service registered for algorithm %q", st.Algorithm))
	}
	switch st.Operation {
	case stage.Forward:
		if !svc.SupportsForward() {
			return nil, pipelineerr.New(pipelineerr.IncompatibleStage, st.Algorithm, fmt.Errorf("service does not support forward operation"))
		}
	case stage.Reverse:
		if !svc.SupportsReverse() {
			return nil, pipelineerr.New(pipelineerr.IncompatibleStage, st.Algorithm, fmt.Errorf("service does not advertise reversibility"))
		}
	default:
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, st.Algorithm, fmt.Errorf("unknown operation %q", st.Operation))
	}
	return svc, nil
}
