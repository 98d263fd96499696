// Command adapipe-bench is a standalone throughput/regression harness
// around the processing engine: flag-driven, logrus-logged,
// baseline-file-based, run outside of "go test" so it can be pointed
// at a long-lived build. It
// backs the "adapipe benchmark" subcommand's heavier lifting when run
// repeatedly across a whole algorithm matrix rather than one stage at a
// time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/adapipe/internal/bench"
	"github.com/kenneth/adapipe/internal/checksumstage"
	"github.com/kenneth/adapipe/internal/compressstage"
	"github.com/kenneth/adapipe/internal/cryptostage"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
	"github.com/kenneth/adapipe/internal/transformstage"
)

func main() {
	var (
		size           = flag.Int64("size", 8*1024*1024, "generated input size in bytes")
		iterations     = flag.Int("iterations", 10, "iterations per algorithm")
		baselineDir    = flag.String("baseline-dir", "testdata/baselines", "directory for benchmark baseline files")
		updateBaseline = flag.Bool("update-baseline", false, "write fresh baseline files instead of comparing against them")
		verbose        = flag.Bool("verbose", false, "enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if err := os.MkdirAll(*baselineDir, 0o755); err != nil {
		log.Fatalf("failed to create baseline directory: %v", err)
	}

	registry := stagesvc.NewRegistry()
	registry.Register(checksumstage.NewSHA256())
	registry.Register(compressstage.NewGzip())
	registry.Register(compressstage.NewZstd())
	registry.Register(compressstage.NewSnappy())
	registry.Register(cryptostage.NewAES256GCM())
	registry.Register(cryptostage.NewChaCha20Poly1305())
	registry.Register(transformstage.NewPassThrough())

	matrix := []struct {
		name      string
		kind      stage.Kind
		algorithm string
		key       *stagesvc.KeyMaterial
	}{
		{"gzip", stage.Compression, "gzip", nil},
		{"zstd", stage.Compression, "zstd", nil},
		{"snappy", stage.Compression, "snappy", nil},
		{"aes-256-gcm", stage.Encryption, "aes-256-gcm", &stagesvc.KeyMaterial{Key: make([]byte, 32)}},
		{"chacha20-poly1305", stage.Encryption, "chacha20-poly1305", &stagesvc.KeyMaterial{Key: make([]byte, 32)}},
	}

	fmt.Println("=== adapipe-bench ===")
	fmt.Printf("input size: %d bytes, iterations: %d\n\n", *size, *iterations)

	exitCode := 0
	start := time.Now()
	for _, entry := range matrix {
		fmt.Printf("--- %s ---\n", entry.name)
		durations, err := bench.Run(context.Background(), bench.Config{
			Name:     entry.name,
			Registry: registry,
			Stages: []stage.Stage{
				{Name: entry.name, Kind: entry.kind, Algorithm: entry.algorithm, Operation: stage.Forward, ParallelSafe: true},
			},
			Key:        entry.key,
			InputSize:  *size,
			Iterations: *iterations,
			Logger:     logger,
		})
		if err != nil {
			logger.WithError(err).Errorf("benchmark %s failed", entry.name)
			exitCode = 1
			continue
		}
		output := bench.FormatBenchmark(entry.name, durations)
		baselinePath := filepath.Join(*baselineDir, entry.name+".bench.txt")

		if *updateBaseline {
			if err := os.WriteFile(baselinePath, output, 0o644); err != nil {
				logger.WithError(err).Error("failed to write baseline")
				exitCode = 1
				continue
			}
			fmt.Printf("baseline updated: %s\n\n", baselinePath)
			continue
		}

		baseline, err := os.ReadFile(baselinePath)
		if os.IsNotExist(err) {
			fmt.Printf("no baseline at %s yet; run with -update-baseline to create one\n\n", baselinePath)
			continue
		}
		if err != nil {
			logger.WithError(err).Error("failed to read baseline")
			exitCode = 1
			continue
		}
		report, err := bench.Compare("baseline", baseline, entry.name, output)
		if err != nil {
			logger.WithError(err).Error("benchstat comparison failed")
			exitCode = 1
			continue
		}
		fmt.Println(report)
	}

	fmt.Printf("=== adapipe-bench complete (%v) ===\n", time.Since(start))
	os.Exit(exitCode)
}
