package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/container"
	"github.com/kenneth/adapipe/internal/executor"
	"github.com/kenneth/adapipe/internal/pipeline"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stagesvc"
	"github.com/kenneth/adapipe/internal/tracing"
)

const corruptSuffix = ".corrupt"

// Restore reverses a container back into the original file. Chunks are
// read and restored strictly in sequence order, so no worker pool is
// needed here: restoration is inherently sequential because each
// chunk's plaintext must be appended to the output in order.
func (e *Engine) Restore(ctx context.Context, opts RestoreOptions) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	start := time.Now()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	fileBytes, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return Result{}, pipelineerr.New(pipelineerr.IoError, "restore", fmt.Errorf("read container: %w", err))
	}

	header, footerLen, err := container.DecodeFooter(fileBytes)
	if err != nil {
		return Result{}, err
	}
	chunkRegion := fileBytes[:len(fileBytes)-footerLen]

	sum := sha256.Sum256(chunkRegion)
	if hex.EncodeToString(sum[:]) != header.OutputChecksum {
		return Result{}, pipelineerr.New(pipelineerr.IntegrityViolation, "restore", fmt.Errorf("output checksum mismatch: container has been tampered with or truncated"))
	}

	restorePipeline, err := pipeline.SynthesizeRestoration(header.ProcessingSteps, header.PipelineID)
	if err != nil {
		return Result{}, err
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("adapipe")
	}
	ctx, runSpan := tracing.RunSpan(ctx, tracer, "restore", header.PipelineID)
	defer runSpan.End()
	observe := stageObserver(opts.Metrics)

	if err := checkOutputPath(opts.OutputPath, opts.OnExists); err != nil {
		return Result{}, err
	}

	outPath := opts.OutputPath
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, pipelineerr.New(pipelineerr.IoError, "restore", fmt.Errorf("open output: %w", err))
	}

	reader := container.NewChunkReader(newByteReader(chunkRegion), int64(len(chunkRegion)))
	outputHash := sha256.New()
	var sequence uint64
	var bytesRestored uint64

	for {
		select {
		case <-ctx.Done():
			out.Close()
			return Result{}, pipelineerr.New(pipelineerr.Cancelled, "restore", ctx.Err())
		default:
		}

		rec, readErr := reader.Next()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return Result{}, readErr
		}

		// chunk.New's size invariant is checked against the logical
		// (plaintext) chunk size and does not apply to a record's
		// on-the-wire payload (compressed/encrypted bytes of varying
		// length), so the restoration chunk is built directly.
		final := header.ChunkCount > 0 && sequence == uint64(header.ChunkCount)-1
		c := chunk.Chunk{Sequence: sequence, Offset: sequence * uint64(header.ChunkSize), Payload: rec.Data, Final: final}

		sc := &stagesvc.Context{Ctx: ctx, Key: opts.Key, Security: opts.Security, ChunkNonce: rec.Nonce}
		restored, err := executor.ExecuteChainObserved(e.registry, restorePipeline.Stages, c, sc, observe)
		if err != nil {
			out.Close()
			markCorrupt(outPath, logger)
			return Result{}, err
		}

		if _, err := out.Write(restored.Payload); err != nil {
			out.Close()
			return Result{}, pipelineerr.New(pipelineerr.IoError, "restore", fmt.Errorf("write restored chunk %d: %w", sequence, err))
		}
		outputHash.Write(restored.Payload)
		bytesRestored += uint64(len(restored.Payload))
		if opts.Metrics != nil {
			opts.Metrics.RecordChunk("restore", "out", len(restored.Payload))
		}
		sequence++
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return Result{}, pipelineerr.New(pipelineerr.IoError, "restore", fmt.Errorf("fsync output: %w", err))
	}
	if err := out.Close(); err != nil {
		return Result{}, pipelineerr.New(pipelineerr.IoError, "restore", fmt.Errorf("close output: %w", err))
	}

	restoredChecksum := hex.EncodeToString(outputHash.Sum(nil))
	verified := restoredChecksum == header.OriginalChecksum
	if !verified {
		markCorrupt(outPath, logger)
		return Result{}, pipelineerr.New(pipelineerr.IntegrityViolation, "restore", fmt.Errorf("restored checksum %s does not match original_checksum %s", restoredChecksum, header.OriginalChecksum))
	}

	return Result{
		BytesOut:       bytesRestored,
		ChunkCount:     header.ChunkCount,
		Elapsed:        time.Since(start),
		OriginalSHA256: header.OriginalChecksum,
		OutputSHA256:   restoredChecksum,
		Verified:       verified,
		PipelineID:     header.PipelineID,
	}, nil
}

// checkOutputPath enforces the overwrite policy.
func checkOutputPath(path string, policy OnExistsPolicy) error {
	if policy == "" {
		policy = OnExistsRefuse
	}
	_, err := os.Stat(path)
	exists := err == nil
	if !exists {
		return nil
	}
	switch policy {
	case OnExistsRefuse:
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "restore", fmt.Errorf("output %s already exists", path))
	case OnExistsOverwrite:
		return nil
	case OnExistsOverwriteBackup:
		backup := path + ".bak." + time.Now().UTC().Format("20060102T150405Z")
		return os.Rename(path, backup)
	default:
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "restore", fmt.Errorf("unknown on-exists policy %q", policy))
	}
}

// markCorrupt renames a failed-restoration output with a .corrupt
// suffix rather than deleting it, so the operator can inspect the
// partial bytes.
func markCorrupt(path string, logger *logrus.Logger) {
	if err := os.Rename(path, path+corruptSuffix); err != nil {
		logger.WithError(err).Warn("failed to rename partial restoration output to .corrupt")
	}
}

type byteReader struct {
	b   []byte
	pos int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
