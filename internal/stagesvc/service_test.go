package stagesvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/stage"
)

type fakeService struct {
	algorithm        string
	kind             stage.Kind
	supportsForward  bool
	supportsReverse  bool
}

func (f *fakeService) Algorithm() string      { return f.algorithm }
func (f *fakeService) Kind() stage.Kind       { return f.kind }
func (f *fakeService) SupportsForward() bool  { return f.supportsForward }
func (f *fakeService) SupportsReverse() bool  { return f.supportsReverse }
func (f *fakeService) ParallelSafe() bool     { return true }
func (f *fakeService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *Context) (chunk.Chunk, error) {
	return c, nil
}

func TestRegistry_ResolveUnknownAlgorithm(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(stage.Stage{Algorithm: "missing", Operation: stage.Forward})
	assert.Error(t, err)
}

func TestRegistry_ResolveUnsupportedOperation(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeService{algorithm: "gzip", kind: stage.Compression, supportsForward: true, supportsReverse: false})

	_, err := r.Resolve(stage.Stage{Algorithm: "gzip", Operation: stage.Forward})
	require.NoError(t, err)

	_, err = r.Resolve(stage.Stage{Algorithm: "gzip", Operation: stage.Reverse})
	assert.Error(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	svc := &fakeService{algorithm: "aes-256-gcm", kind: stage.Encryption, supportsForward: true, supportsReverse: true}
	r.Register(svc)

	got, ok := r.Lookup("aes-256-gcm")
	require.True(t, ok)
	assert.Equal(t, svc, got)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}
