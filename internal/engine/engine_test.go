package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/adapipe/internal/checksumstage"
	"github.com/kenneth/adapipe/internal/compressstage"
	"github.com/kenneth/adapipe/internal/cryptostage"
	"github.com/kenneth/adapipe/internal/pipeline"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
	"github.com/kenneth/adapipe/internal/transformstage"
)

func testRegistry() *stagesvc.Registry {
	r := stagesvc.NewRegistry()
	r.Register(checksumstage.NewSHA256())
	r.Register(compressstage.NewGzip())
	r.Register(compressstage.NewZstd())
	r.Register(compressstage.NewSnappy())
	r.Register(cryptostage.NewAES256GCM())
	r.Register(cryptostage.NewChaCha20Poly1305())
	r.Register(transformstage.NewPassThrough())
	r.Register(transformstage.NewBase64())
	return r
}

func writeRandomFile(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "input.bin")
	data := make([]byte, size)
	if size > 0 {
		_, err := rand.Read(data)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func runRoundTrip(t *testing.T, size int, userStages []stage.Stage, key *stagesvc.KeyMaterial) {
	t.Helper()
	dir := t.TempDir()
	inputPath := writeRandomFile(t, dir, size)
	originalBytes, err := os.ReadFile(inputPath)
	require.NoError(t, err)

	p, err := pipeline.New("roundtrip", userStages)
	require.NoError(t, err)

	eng := New(testRegistry())
	containerPath := filepath.Join(dir, "output.adapipe")

	processResult, err := eng.Process(context.Background(), p, ProcessOptions{
		PipelineID: p.ID,
		InputPath:  inputPath,
		OutputPath: containerPath,
		Key:        key,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(size), processResult.BytesIn)

	restoredPath := filepath.Join(dir, "restored.bin")
	restoreResult, err := eng.Restore(context.Background(), RestoreOptions{
		InputPath:  containerPath,
		OutputPath: restoredPath,
		OnExists:   OnExistsRefuse,
		Key:        key,
	})
	require.NoError(t, err)
	assert.True(t, restoreResult.Verified)

	restoredBytes, err := os.ReadFile(restoredPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(originalBytes, restoredBytes), "restored bytes must exactly match the original input")
}

func passThroughStage() []stage.Stage {
	return []stage.Stage{{Name: "identity", Kind: stage.PassThrough, Algorithm: "identity", Operation: stage.Forward, ParallelSafe: true}}
}

func gzipStage() []stage.Stage {
	return []stage.Stage{{Name: "gzip", Kind: stage.Compression, Algorithm: "gzip", Operation: stage.Forward, ParallelSafe: true}}
}

func encryptStage(algorithm string) []stage.Stage {
	return []stage.Stage{{Name: "enc", Kind: stage.Encryption, Algorithm: algorithm, Operation: stage.Forward, ParallelSafe: true}}
}

func testKey() *stagesvc.KeyMaterial {
	return &stagesvc.KeyMaterial{Key: make([]byte, 32)}
}

// TestRoundTrip_PassThroughAcrossSizes exercises the chunk-boundary
// sizes for the simplest pipeline.
func TestRoundTrip_PassThroughAcrossSizes(t *testing.T) {
	sizes := []int{0, 1, 1024, 1024*1024 - 1, 1024 * 1024, 1024*1024 + 1}
	for _, size := range sizes {
		t.Run("", func(t *testing.T) {
			runRoundTrip(t, size, passThroughStage(), nil)
		})
	}
}

func TestRoundTrip_Compression(t *testing.T) {
	runRoundTrip(t, 5*1024*1024, gzipStage(), nil)
}

func TestRoundTrip_CompressionAlgorithms(t *testing.T) {
	for _, alg := range []string{"gzip", "zstd", "snappy"} {
		t.Run(alg, func(t *testing.T) {
			runRoundTrip(t, 2*1024*1024, []stage.Stage{
				{Name: alg, Kind: stage.Compression, Algorithm: alg, Operation: stage.Forward, ParallelSafe: true},
			}, nil)
		})
	}
}

func TestRoundTrip_Encryption(t *testing.T) {
	for _, alg := range []string{"aes-256-gcm", "chacha20-poly1305"} {
		t.Run(alg, func(t *testing.T) {
			runRoundTrip(t, 3*1024*1024, encryptStage(alg), testKey())
		})
	}
}

func TestRoundTrip_CompressThenEncrypt(t *testing.T) {
	stages := []stage.Stage{
		{Name: "gzip", Kind: stage.Compression, Algorithm: "gzip", Operation: stage.Forward, ParallelSafe: true},
		{Name: "aes", Kind: stage.Encryption, Algorithm: "aes-256-gcm", Operation: stage.Forward, ParallelSafe: true},
	}
	runRoundTrip(t, 4*1024*1024, stages, testKey())
}

func TestRoundTrip_Transform(t *testing.T) {
	stages := []stage.Stage{{Name: "b64", Kind: stage.Transform, Algorithm: "base64", Operation: stage.Forward, ParallelSafe: true}}
	runRoundTrip(t, 8192, stages, nil)
}

func TestProcess_DeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeRandomFile(t, dir, 2*1024*1024)

	p, err := pipeline.New("det", gzipStage())
	require.NoError(t, err)
	eng := New(testRegistry())

	out1 := filepath.Join(dir, "out1.adapipe")
	out2 := filepath.Join(dir, "out2.adapipe")

	r1, err := eng.Process(context.Background(), p, ProcessOptions{PipelineID: p.ID, InputPath: inputPath, OutputPath: out1})
	require.NoError(t, err)
	r2, err := eng.Process(context.Background(), p, ProcessOptions{PipelineID: p.ID, InputPath: inputPath, OutputPath: out2})
	require.NoError(t, err)

	assert.Equal(t, r1.OriginalSHA256, r2.OriginalSHA256)
	assert.Equal(t, r1.OutputSHA256, r2.OutputSHA256)
	assert.Equal(t, r1.ChunkCount, r2.ChunkCount)
}

func TestContainer_IsSelfDescribing(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeRandomFile(t, dir, 1024*1024)
	p, err := pipeline.New("self-describe", gzipStage())
	require.NoError(t, err)
	eng := New(testRegistry())

	containerPath := filepath.Join(dir, "out.adapipe")
	_, err = eng.Process(context.Background(), p, ProcessOptions{PipelineID: p.ID, InputPath: inputPath, OutputPath: containerPath})
	require.NoError(t, err)

	// Restore with a brand-new engine/registry instance and no reference
	// to the original pipeline object: every detail needed to reverse
	// the run must come from the container itself.
	freshEngine := New(testRegistry())
	restoredPath := filepath.Join(dir, "restored.bin")
	_, err = freshEngine.Restore(context.Background(), RestoreOptions{InputPath: containerPath, OutputPath: restoredPath})
	require.NoError(t, err)

	want, err := os.ReadFile(inputPath)
	require.NoError(t, err)
	got, err := os.ReadFile(restoredPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRestore_DetectsTamperedContainer(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeRandomFile(t, dir, 1024*1024)
	p, err := pipeline.New("tamper", gzipStage())
	require.NoError(t, err)
	eng := New(testRegistry())

	containerPath := filepath.Join(dir, "out.adapipe")
	_, err = eng.Process(context.Background(), p, ProcessOptions{PipelineID: p.ID, InputPath: inputPath, OutputPath: containerPath})
	require.NoError(t, err)

	data, err := os.ReadFile(containerPath)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(containerPath, data, 0o644))

	restoredPath := filepath.Join(dir, "restored.bin")
	_, err = eng.Restore(context.Background(), RestoreOptions{InputPath: containerPath, OutputPath: restoredPath})
	assert.Error(t, err, "a bit-flipped container must fail the output checksum or footer validation")
}

func TestRestore_RefusesExistingOutputByDefault(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeRandomFile(t, dir, 4096)
	p, err := pipeline.New("exists", passThroughStage())
	require.NoError(t, err)
	eng := New(testRegistry())

	containerPath := filepath.Join(dir, "out.adapipe")
	_, err = eng.Process(context.Background(), p, ProcessOptions{PipelineID: p.ID, InputPath: inputPath, OutputPath: containerPath})
	require.NoError(t, err)

	restoredPath := filepath.Join(dir, "restored.bin")
	require.NoError(t, os.WriteFile(restoredPath, []byte("already here"), 0o644))

	_, err = eng.Restore(context.Background(), RestoreOptions{InputPath: containerPath, OutputPath: restoredPath})
	assert.Error(t, err)

	_, err = eng.Restore(context.Background(), RestoreOptions{InputPath: containerPath, OutputPath: restoredPath, OnExists: OnExistsOverwrite})
	assert.NoError(t, err)
}

func TestProcess_CancellationStopsRunWithoutPartialOutput(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeRandomFile(t, dir, 32*1024*1024)
	p, err := pipeline.New("cancel", gzipStage())
	require.NoError(t, err)
	eng := New(testRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	containerPath := filepath.Join(dir, "out.adapipe")
	_, err = eng.Process(ctx, p, ProcessOptions{PipelineID: p.ID, InputPath: inputPath, OutputPath: containerPath})
	assert.Error(t, err)
	_, statErr := os.Stat(containerPath)
	assert.True(t, os.IsNotExist(statErr), "a cancelled run must not leave a partial container behind")
}
