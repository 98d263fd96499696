package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/adapipe/internal/stage"
)

func gzipStage(order uint32) stage.Stage {
	return stage.Stage{Name: "gzip", Kind: stage.Compression, Algorithm: "gzip", Order: order, Operation: stage.Forward, ParallelSafe: true}
}

func TestNew_BracketsWithChecksumStages(t *testing.T) {
	p, err := New("demo", []stage.Stage{gzipStage(0)})
	require.NoError(t, err)
	require.Len(t, p.Stages, 3)
	assert.Equal(t, inputChecksumName, p.Stages[0].Name)
	assert.Equal(t, "gzip", p.Stages[1].Name)
	assert.Equal(t, outputChecksumName, p.Stages[2].Name)
	assert.NotEmpty(t, p.ID)
}

func TestNew_RejectsEmptyNameOrStages(t *testing.T) {
	_, err := New("", []stage.Stage{gzipStage(0)})
	assert.Error(t, err)

	_, err = New("demo", nil)
	assert.Error(t, err)
}

func TestAddRemoveStage(t *testing.T) {
	p, err := New("demo", []stage.Stage{gzipStage(0)})
	require.NoError(t, err)

	err = p.AddStage(stage.Stage{Name: "aes", Kind: stage.Encryption, Algorithm: "aes-256-gcm", Operation: stage.Forward, ParallelSafe: true})
	require.NoError(t, err)
	require.Len(t, p.UserStages(), 2)
	assert.Equal(t, "aes", p.UserStages()[1].Name)

	require.NoError(t, p.RemoveStage("gzip"))
	require.Len(t, p.UserStages(), 1)

	err = p.RemoveStage("aes")
	assert.Error(t, err, "removing the last user stage must be rejected")
}

func TestSynthesizeRestoration_ReversesSkipsAndRenames(t *testing.T) {
	p, err := New("demo", []stage.Stage{
		{Name: "gzip", Kind: stage.Compression, Algorithm: "gzip", Operation: stage.Forward, ParallelSafe: true},
		{Name: "aes", Kind: stage.Encryption, Algorithm: "aes-256-gcm", Operation: stage.Forward, ParallelSafe: true},
	})
	require.NoError(t, err)

	steps := p.ToProcessingSteps()
	restore, err := SynthesizeRestoration(steps, p.ID)
	require.NoError(t, err)

	// Checksum brackets are dropped; the two data stages come back in
	// reverse order with Operation flipped.
	require.Len(t, restore.Stages, 2)
	assert.Equal(t, "aes-256-gcm", restore.Stages[0].Algorithm)
	assert.Equal(t, stage.Reverse, restore.Stages[0].Operation)
	assert.Equal(t, "gzip", restore.Stages[1].Algorithm)
	assert.Equal(t, stage.Reverse, restore.Stages[1].Operation)
	assert.True(t, restore.IsRestoration())
	assert.False(t, p.IsRestoration())
}

func TestValidate_RejectsOutOfOrderStages(t *testing.T) {
	p, err := New("demo", []stage.Stage{gzipStage(0)})
	require.NoError(t, err)

	p.Stages[1].Order = p.Stages[2].Order
	assert.Error(t, p.Validate())
}
