// Package bench runs repeated engine.Process calls and records the
// timings in Go-benchmark text format, then hands two such recordings
// to golang.org/x/perf/benchstat for a statistically-aware regression
// verdict. It is the shared core behind the "adapipe benchmark"
// subcommand and the standalone cmd/adapipe-bench harness.
package bench

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/adapipe/internal/engine"
	"github.com/kenneth/adapipe/internal/pipeline"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

// Config describes one benchmark run.
type Config struct {
	Name       string
	Registry   *stagesvc.Registry
	Stages     []stage.Stage
	Key        *stagesvc.KeyMaterial
	InputSize  int64
	Iterations int
	Logger     *logrus.Logger
}

// Run processes a freshly generated random input of Config.InputSize
// through Config.Stages Config.Iterations times and returns the elapsed
// wall-clock duration of each iteration.
func Run(ctx context.Context, cfg Config) ([]time.Duration, error) {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dir, err := os.MkdirTemp("", "adapipe-bench-*")
	if err != nil {
		return nil, fmt.Errorf("create bench temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.bin")
	payload := make([]byte, cfg.InputSize)
	if _, err := rand.Read(payload); err != nil {
		return nil, fmt.Errorf("generate bench payload: %w", err)
	}
	if err := os.WriteFile(inputPath, payload, 0o644); err != nil {
		return nil, fmt.Errorf("write bench input: %w", err)
	}

	p, err := pipeline.New(cfg.Name, cfg.Stages)
	if err != nil {
		return nil, err
	}
	eng := engine.New(cfg.Registry)

	durations := make([]time.Duration, 0, cfg.Iterations)
	for i := 0; i < cfg.Iterations; i++ {
		outputPath := filepath.Join(dir, fmt.Sprintf("out-%d.adapipe", i))
		start := time.Now()
		_, err := eng.Process(ctx, p, engine.ProcessOptions{
			PipelineID: p.ID,
			InputPath:  inputPath,
			OutputPath: outputPath,
			Key:        cfg.Key,
			Logger:     logger,
		})
		elapsed := time.Since(start)
		os.Remove(outputPath)
		if err != nil {
			return nil, fmt.Errorf("bench iteration %d: %w", i, err)
		}
		durations = append(durations, elapsed)
		logger.WithFields(logrus.Fields{"iteration": i, "elapsed": elapsed}).Debug("bench iteration complete")
	}
	return durations, nil
}

// FormatBenchmark renders durations in the textual format "go test -bench"
// produces, one line per iteration, so a single benchmark name maps to N
// repeated measurements the way benchstat expects to see them.
func FormatBenchmark(name string, durations []time.Duration) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "goos: %s\n", runtime.GOOS)
	fmt.Fprintf(&buf, "goarch: %s\n", runtime.GOARCH)
	for _, d := range durations {
		fmt.Fprintf(&buf, "Benchmark%s 1 %d ns/op\n", name, d.Nanoseconds())
	}
	return buf.Bytes()
}
