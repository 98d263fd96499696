package pipelineerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_UnwrapAndIs(t *testing.T) {
	base := errors.New("disk full")
	err := New(IoError, "write chunk", base)

	assert.True(t, Is(err, IoError))
	assert.False(t, Is(err, DatabaseError))
	assert.ErrorIs(t, err, base)
}

func TestError_MessageIncludesKindOpAndCause(t *testing.T) {
	err := New(ValidationError, "footer", errors.New("bad magic"))
	assert.Contains(t, err.Error(), "ValidationError")
	assert.Contains(t, err.Error(), "footer")
	assert.Contains(t, err.Error(), "bad magic")
}

func TestKindOf_DefaultsToInternalErrorForForeignErrors(t *testing.T) {
	assert.Equal(t, InternalError, KindOf(errors.New("not ours")))
	assert.Equal(t, IoError, KindOf(New(IoError, "op", nil)))
}

func TestKindOf_FindsKindThroughWrapping(t *testing.T) {
	inner := New(IntegrityViolation, "chunk", errors.New("checksum mismatch"))
	wrapped := fmt.Errorf("process failed: %w", inner)
	assert.Equal(t, IntegrityViolation, KindOf(wrapped))
}

func TestExitCode_CoversEveryKind(t *testing.T) {
	tests := map[Kind]int{
		InvalidConfiguration: 64,
		IntegrityViolation:   65,
		ValidationError:      65,
		SerializationError:   65,
		PipelineNotFound:     66,
		IncompatibleStage:    65,
		IoError:              74,
		DatabaseError:        74,
		ResourceExhausted:    75,
		Cancelled:            75,
		InternalError:        70,
	}
	for kind, want := range tests {
		assert.Equal(t, want, ExitCode(kind), "kind %s", kind)
	}
}
