package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

type upperService struct{}

func (upperService) Algorithm() string     { return "upper" }
func (upperService) Kind() stage.Kind      { return stage.Transform }
func (upperService) SupportsForward() bool { return true }
func (upperService) SupportsReverse() bool { return true }
func (upperService) ParallelSafe() bool    { return true }
func (upperService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	out := make([]byte, len(c.Payload))
	for i, b := range c.Payload {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return c.WithPayload(out), nil
}

type identityCrashingService struct{ upperService }

func (identityCrashingService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	c.Sequence++ // corrupt identity
	return c, nil
}

func TestExecute_RunsStageAndPreservesIdentity(t *testing.T) {
	r := stagesvc.NewRegistry()
	r.Register(upperService{})

	c := chunk.Chunk{Sequence: 1, Offset: 0, Payload: []byte("abc"), Final: true}
	st := stage.Stage{Name: "upper", Kind: stage.Transform, Algorithm: "upper", Operation: stage.Forward}

	out, err := Execute(r, st, c, &stagesvc.Context{})
	require.NoError(t, err)
	assert.Equal(t, []byte("ABC"), out.Payload)
}

func TestExecute_RejectsIdentityCorruption(t *testing.T) {
	r := stagesvc.NewRegistry()
	r.Register(identityCrashingService{})

	c := chunk.Chunk{Sequence: 1, Payload: []byte("abc")}
	st := stage.Stage{Name: "upper", Kind: stage.Transform, Algorithm: "upper", Operation: stage.Forward}

	_, err := Execute(r, st, c, &stagesvc.Context{})
	assert.Error(t, err)
}

func TestExecuteChain_RunsInOrder(t *testing.T) {
	r := stagesvc.NewRegistry()
	r.Register(upperService{})

	c := chunk.Chunk{Sequence: 0, Payload: []byte("ab"), Final: true}
	stages := []stage.Stage{
		{Name: "upper1", Kind: stage.Transform, Algorithm: "upper", Operation: stage.Forward},
		{Name: "upper2", Kind: stage.Transform, Algorithm: "upper", Operation: stage.Forward},
	}

	out, err := ExecuteChain(r, stages, c, &stagesvc.Context{})
	require.NoError(t, err)
	assert.Equal(t, []byte("AB"), out.Payload)
}
