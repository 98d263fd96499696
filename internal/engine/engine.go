// Package engine implements the forward processing engine and the
// restoration engine. Both share the same stage-service registry,
// resource manager and container codec; Process produces a ".adapipe"
// container, Restore consumes one.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/container"
	"github.com/kenneth/adapipe/internal/debug"
	"github.com/kenneth/adapipe/internal/executor"
	"github.com/kenneth/adapipe/internal/metrics"
	"github.com/kenneth/adapipe/internal/pipeline"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/resource"
	"github.com/kenneth/adapipe/internal/sizer"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
	"github.com/kenneth/adapipe/internal/tracing"
)

const appVersion = "0.1.0"
const ioRetries = 3

// OnExistsPolicy is the restoration overwrite policy.
type OnExistsPolicy string

const (
	OnExistsRefuse          OnExistsPolicy = "refuse-if-exists"
	OnExistsOverwrite       OnExistsPolicy = "overwrite"
	OnExistsOverwriteBackup OnExistsPolicy = "overwrite-backup"
)

// ProcessOptions configures a forward run.
type ProcessOptions struct {
	PipelineID        string
	InputPath         string
	OutputPath        string
	WorkerOverride    int
	ChunkSizeOverride int
	Timeout           time.Duration
	Metadata          map[string]string
	Key               *stagesvc.KeyMaterial
	Security          *stagesvc.SecurityContext
	Logger            *logrus.Logger
	Tracer            trace.Tracer
	Metrics           *metrics.Metrics
}

// RestoreOptions configures a restoration run.
type RestoreOptions struct {
	InputPath  string
	OutputPath string
	OnExists   OnExistsPolicy
	Timeout    time.Duration
	Key        *stagesvc.KeyMaterial
	Security   *stagesvc.SecurityContext
	Logger     *logrus.Logger
	Tracer     trace.Tracer
	Metrics    *metrics.Metrics
}

// Result is returned by both Process and Restore.
type Result struct {
	BytesIn        uint64
	BytesOut       uint64
	ChunkCount     uint32
	Elapsed        time.Duration
	OriginalSHA256 string
	OutputSHA256   string
	Verified       bool
	PipelineID     string
}

// Engine ties together the registry, resource manager, and container
// codec for both forward processing and restoration.
type Engine struct {
	registry *stagesvc.Registry
	manager  *resource.Manager
}

// New constructs an Engine bound to registry and the process-wide
// resource manager singleton.
func New(registry *stagesvc.Registry) *Engine {
	return &Engine{registry: registry, manager: resource.Get()}
}

type chunkTask struct {
	sequence uint64
	offset   uint64
	payload  []byte
	final    bool
}

// Process runs the forward pipeline: chunked read, parallel stage
// chains, dense in-order write-out, footer.
func (e *Engine) Process(ctx context.Context, p *pipeline.Pipeline, opts ProcessOptions) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
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

	in, err := os.Open(opts.InputPath)
	if err != nil {
		return Result{}, pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("open input: %w", err))
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return Result{}, pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("stat input: %w", err))
	}
	originalSize := uint64(info.Size())
	chunkSize, sizeWarning := sizer.ResolveChunkSize(originalSize, opts.ChunkSizeOverride)
	if sizeWarning != "" {
		logger.Warn(sizeWarning)
	}
	chunkCount := sizer.ChunkCount(originalSize, chunkSize)

	containsEncryptOrCompress := false
	for _, s := range p.UserStages() {
		if s.Kind == stage.Compression || s.Kind == stage.Encryption {
			containsEncryptOrCompress = true
		}
	}
	workerCount, warning := sizer.ResolveWorkerCount(originalSize, runtime.NumCPU(), containsEncryptOrCompress, opts.WorkerOverride)
	if warning != "" {
		logger.Warn(warning)
	}
	if debug.Enabled() {
		fields := logrus.Fields{
			"original_size": originalSize,
			"chunk_size":    chunkSize,
			"chunk_count":   chunkCount,
			"worker_count":  workerCount,
		}
		if opts.Security != nil {
			fields["identity"] = opts.Security.Identity
		}
		logger.WithFields(fields).Debug("process: adaptive sizing resolved")
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("adapipe")
	}
	ctx, runSpan := tracing.RunSpan(ctx, tracer, "process", p.ID)
	defer runSpan.End()

	if opts.Metrics != nil {
		opts.Metrics.SetWorkerPoolSize(workerCount)
	}
	observe := stageObserver(opts.Metrics)

	out, err := os.OpenFile(opts.OutputPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("open output: %w", err))
	}
	cleanup := func() {
		out.Close()
		os.Remove(opts.OutputPath)
	}

	inputHash := sha256.New()
	writer := container.NewSequentialWriter(out)
	runSem := resource.NewRunSemaphore(workerCount)

	var wg sync.WaitGroup
	var chunksCompleted uint64
	var bytesWritten uint64
	var firstErr atomic.Value // error
	var writeMu sync.Mutex

	setErr := func(err error) {
		firstErr.CompareAndSwap(nil, err)
	}

	submitRecord := func(sequence uint64, nonce []byte, data []byte) error {
		if nonce == nil {
			nonce = make([]byte, 12)
		}
		rec, err := container.EncodeRecord(nonce, data)
		if err != nil {
			return pipelineerr.New(pipelineerr.InternalError, "process", err)
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return writer.Submit(sequence, rec)
	}

	ctx, batchSpan := tracing.ChunkBatchSpan(ctx, tracer, 0, uint64(chunkCount))

	for i := uint64(0); i < uint64(chunkCount); i++ {
		if v := firstErr.Load(); v != nil {
			break
		}
		release, err := runSem.Acquire(ctx)
		if err != nil {
			setErr(pipelineerr.New(pipelineerr.Cancelled, "process", err))
			break
		}

		payload := make([]byte, chunkSize)
		n, readErr := io.ReadFull(in, payload)
		final := i == uint64(chunkCount)-1
		if readErr == io.ErrUnexpectedEOF || (final && n < len(payload)) {
			payload = payload[:n]
		} else if readErr != nil && readErr != io.EOF {
			release()
			setErr(pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("read input chunk %d: %w", i, readErr)))
			break
		}
		inputHash.Write(payload)

		task := chunkTask{sequence: i, offset: i * uint64(chunkSize), payload: payload, final: final}

		wg.Add(1)
		go func(t chunkTask) {
			defer wg.Done()
			defer release()

			cpuRelease, err := e.manager.AcquireCPU(ctx)
			if err != nil {
				setErr(pipelineerr.New(pipelineerr.Cancelled, "process", err))
				return
			}
			defer cpuRelease()

			c, err := chunk.New(t.sequence, t.offset, t.payload, t.final, chunkSize)
			if err != nil {
				setErr(pipelineerr.New(pipelineerr.InternalError, "process", err))
				return
			}

			sc := &stagesvc.Context{Ctx: ctx, Key: opts.Key, Security: opts.Security}
			out, err := executor.ExecuteChainObserved(e.registry, p.Stages, c, sc, observe)
			if err != nil {
				setErr(err)
				return
			}

			if err := e.writeWithRetry(ctx, func() error {
				return submitRecord(t.sequence, sc.ChunkNonce, out.Payload)
			}); err != nil {
				setErr(err)
				return
			}

			atomic.AddUint64(&chunksCompleted, 1)
			atomic.AddUint64(&bytesWritten, uint64(len(out.Payload)))
			if opts.Metrics != nil {
				opts.Metrics.RecordChunk("process", "out", len(out.Payload))
			}
		}(task)
	}

	wg.Wait()
	batchSpan.End()

	if v := firstErr.Load(); v != nil {
		cleanup()
		return Result{}, v.(error)
	}
	select {
	case <-ctx.Done():
		cleanup()
		return Result{}, pipelineerr.New(pipelineerr.Cancelled, "process", ctx.Err())
	default:
	}

	originalChecksum := hex.EncodeToString(inputHash.Sum(nil))
	outputChecksum := writer.OutputChecksum()

	header := container.FileHeader{
		AppVersion:       appVersion,
		FormatVersion:    container.CurrentFormatVersion,
		OriginalFilename: info.Name(),
		OriginalSize:     originalSize,
		OriginalChecksum: originalChecksum,
		OutputChecksum:   outputChecksum,
		ProcessingSteps:  p.ToProcessingSteps(),
		ChunkSize:        chunkSize,
		ChunkCount:       chunkCount,
		ProcessedAt:      time.Now().UTC().Format(time.RFC3339),
		PipelineID:       p.ID,
		Metadata:         opts.Metadata,
	}
	footerBytes, err := container.EncodeFooter(header)
	if err != nil {
		cleanup()
		return Result{}, err
	}
	if _, err := out.Write(footerBytes); err != nil {
		cleanup()
		return Result{}, pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("write footer: %w", err))
	}
	if err := out.Sync(); err != nil {
		cleanup()
		return Result{}, pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("fsync output: %w", err))
	}
	if err := out.Close(); err != nil {
		return Result{}, pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("close output: %w", err))
	}

	return Result{
		BytesIn:        originalSize,
		BytesOut:       writer.BytesWritten() + uint64(len(footerBytes)),
		ChunkCount:     chunkCount,
		Elapsed:        time.Since(start),
		OriginalSHA256: originalChecksum,
		OutputSHA256:   outputChecksum,
		PipelineID:     p.ID,
	}, nil
}

// stageObserver adapts a Metrics instance to the executor's observer
// hook; a nil Metrics yields a nil observer (no per-stage overhead).
func stageObserver(m *metrics.Metrics) executor.StageObserver {
	if m == nil {
		return nil
	}
	return func(st stage.Stage, inLen, outLen int, elapsed time.Duration, err error) {
		errKind := ""
		if err != nil {
			errKind = string(pipelineerr.KindOf(err))
		}
		m.RecordStage(string(st.Kind), st.Algorithm, elapsed, errKind)
		if err == nil && st.Kind == stage.Compression && st.Operation == stage.Forward {
			m.RecordCompressionRatio(st.Algorithm, inLen, outLen)
		}
	}
}

func (e *Engine) writeWithRetry(ctx context.Context, fn func() error) error {
	var err error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt <= ioRetries; attempt++ {
		release, acqErr := e.manager.AcquireIO(ctx)
		if acqErr != nil {
			return pipelineerr.New(pipelineerr.Cancelled, "process", acqErr)
		}
		err = fn()
		release()
		if err == nil {
			return nil
		}
		if !pipelineerr.Is(err, pipelineerr.IoError) {
			return err
		}
		if attempt < ioRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("chunk write failed after %d retries: %w", ioRetries, err))
}
