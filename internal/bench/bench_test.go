package bench

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/adapipe/internal/checksumstage"
	"github.com/kenneth/adapipe/internal/compressstage"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

func mustDurations(t *testing.T, base time.Duration, n int) []time.Duration {
	t.Helper()
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = base + time.Duration(i)*time.Microsecond
	}
	return out
}

func testRegistry() *stagesvc.Registry {
	r := stagesvc.NewRegistry()
	r.Register(checksumstage.NewSHA256())
	r.Register(compressstage.NewGzip())
	return r
}

func TestRun_ReturnsOneDurationPerIteration(t *testing.T) {
	durations, err := Run(context.Background(), Config{
		Name:     "bench-gzip",
		Registry: testRegistry(),
		Stages: []stage.Stage{
			{Name: "gzip", Kind: stage.Compression, Algorithm: "gzip", Operation: stage.Forward, ParallelSafe: true},
		},
		InputSize:  64 * 1024,
		Iterations: 3,
	})
	require.NoError(t, err)
	assert.Len(t, durations, 3)
	for _, d := range durations {
		assert.Greater(t, d.Nanoseconds(), int64(0))
	}
}

func TestRun_PropagatesPipelineErrors(t *testing.T) {
	_, err := Run(context.Background(), Config{
		Name:       "bench-bad",
		Registry:   testRegistry(),
		Stages:     nil,
		InputSize:  1024,
		Iterations: 1,
	})
	assert.Error(t, err)
}

func TestFormatBenchmark_OneLinePerIterationPlusHeader(t *testing.T) {
	durations, err := Run(context.Background(), Config{
		Name:     "format-check",
		Registry: testRegistry(),
		Stages: []stage.Stage{
			{Name: "gzip", Kind: stage.Compression, Algorithm: "gzip", Operation: stage.Forward, ParallelSafe: true},
		},
		InputSize:  4096,
		Iterations: 2,
	})
	require.NoError(t, err)

	out := string(FormatBenchmark("format-check", durations))
	assert.Contains(t, out, "goos:")
	assert.Contains(t, out, "goarch:")
	assert.Equal(t, 2, strings.Count(out, "Benchmarkformat-check 1"))
}

func TestCompare_ProducesNonEmptyReport(t *testing.T) {
	baseline := FormatBenchmark("x", mustDurations(t, 5*time.Millisecond, 3))
	candidate := FormatBenchmark("x", mustDurations(t, 6*time.Millisecond, 3))

	report, err := Compare("baseline", baseline, "candidate", candidate)
	require.NoError(t, err)
	assert.NotEmpty(t, report)
}
