// Command adapipe is the CLI entrypoint: process, restore, validate,
// validate-file, compare and pipeline CRUD subcommands, one
// flag.FlagSet per subcommand.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ryanuber/go-glob"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/adapipe/internal/bench"
	"github.com/kenneth/adapipe/internal/checksumstage"
	"github.com/kenneth/adapipe/internal/compressstage"
	"github.com/kenneth/adapipe/internal/config"
	"github.com/kenneth/adapipe/internal/container"
	"github.com/kenneth/adapipe/internal/cryptostage"
	"github.com/kenneth/adapipe/internal/debug"
	"github.com/kenneth/adapipe/internal/engine"
	"github.com/kenneth/adapipe/internal/kms"
	"github.com/kenneth/adapipe/internal/metrics"
	"github.com/kenneth/adapipe/internal/pipeline"
	"github.com/kenneth/adapipe/internal/pipelinedb"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/remote"
	"github.com/kenneth/adapipe/internal/resource"
	"github.com/kenneth/adapipe/internal/servehttp"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
	"github.com/kenneth/adapipe/internal/tracing"
	"github.com/kenneth/adapipe/internal/transformstage"
)

const appVersion = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := logrus.StandardLogger()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: adapipe <process|restore|validate|validate-file|compare|benchmark|create|list|show|delete|serve> [flags]")
		return 64
	}

	cfg, err := config.Load(os.Getenv("ADAPIPE_CONFIG"))
	if err != nil {
		logger.WithError(err).Error("load configuration")
		return 74
	}
	logger.SetLevel(cfg.LogrusLevel())
	debug.InitFromLogLevel(cfg.LogLevel)
	resource.Init(cfg.CPUPermits, cfg.StorageType)

	registry := buildRegistry()

	var cmdErr error
	switch args[0] {
	case "process":
		cmdErr = cmdProcess(logger, registry, cfg, args[1:])
	case "restore":
		cmdErr = cmdRestore(logger, registry, cfg, args[1:])
	case "validate":
		cmdErr = cmdValidate(args[1:])
	case "validate-file":
		cmdErr = cmdValidateFile(args[1:])
	case "compare":
		cmdErr = cmdCompare(logger, registry, args[1:])
	case "benchmark":
		cmdErr = cmdBenchmark(logger, registry, args[1:])
	case "create":
		cmdErr = cmdCreate(cfg, args[1:])
	case "list":
		cmdErr = cmdList(cfg, args[1:])
	case "show":
		cmdErr = cmdShow(cfg, args[1:])
	case "delete":
		cmdErr = cmdDelete(cfg, args[1:])
	case "serve":
		cmdErr = cmdServe(logger, cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return 64
	}

	if cmdErr != nil {
		var pe *pipelineerr.Error
		if errors.As(cmdErr, &pe) {
			fmt.Fprintf(os.Stderr, "error[%s]: %v\n", pe.Kind, cmdErr)
			return pipelineerr.ExitCode(pe.Kind)
		}
		fmt.Fprintln(os.Stderr, "error:", cmdErr)
		return 70
	}
	return 0
}

// buildRegistry wires every stage service into one registry, the
// single place every stagesvc implementation is registered.
func buildRegistry() *stagesvc.Registry {
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

// stageList parses repeated --stage "name:kind:algorithm[:k=v,k=v]" flags
// into ordered user stages.
type stageList []stage.Stage

func (l *stageList) String() string { return "" }

func (l *stageList) Set(raw string) error {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 {
		return fmt.Errorf("--stage %q must be name:kind:algorithm[:k=v,k=v,...]", raw)
	}
	params := map[string]string{}
	if len(parts) == 4 && parts[3] != "" {
		for _, kv := range strings.Split(parts[3], ",") {
			kvParts := strings.SplitN(kv, "=", 2)
			if len(kvParts) != 2 {
				return fmt.Errorf("--stage parameter %q must be key=value", kv)
			}
			params[kvParts[0]] = kvParts[1]
		}
	}
	*l = append(*l, stage.Stage{
		Name:         parts[0],
		Kind:         stage.Kind(parts[1]),
		Algorithm:    parts[2],
		Parameters:   params,
		Operation:    stage.Forward,
		ParallelSafe: true,
	})
	return nil
}

func metaFlag(m *map[string]string) func(string) error {
	return func(raw string) error {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("--meta %q must be key=value", raw)
		}
		if *m == nil {
			*m = map[string]string{}
		}
		(*m)[parts[0]] = parts[1]
		return nil
	}
}

// funcValue adapts a func(string) error to flag.Value for repeatable
// flags that need custom parsing (e.g. --meta).
type funcValue func(string) error

func (f funcValue) String() string     { return "" }
func (f funcValue) Set(s string) error { return f(s) }

func loadKeyMaterial() *stagesvc.KeyMaterial {
	raw := os.Getenv("ADAPIPE_MASTER_KEY")
	if raw == "" {
		return nil
	}
	key, err := decodeHexKey(raw)
	if err != nil {
		return nil
	}
	return &stagesvc.KeyMaterial{Key: key, Algorithm: "aes-256-gcm"}
}

func decodeHexKey(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// securityContext identifies the principal a run executes for, from
// ADAPIPE_IDENTITY or the invoking user.
func securityContext() *stagesvc.SecurityContext {
	identity := os.Getenv("ADAPIPE_IDENTITY")
	if identity == "" {
		identity = os.Getenv("USER")
	}
	if identity == "" {
		return nil
	}
	return &stagesvc.SecurityContext{Identity: identity}
}

func cmdProcess(logger *logrus.Logger, registry *stagesvc.Registry, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	input := fs.String("input", "", "input file path (or glob with --glob)")
	output := fs.String("output", "", "output .adapipe path (ignored with --glob; derived per file)")
	name := fs.String("name", "ad-hoc", "pipeline display name")
	pipelineID := fs.String("pipeline-id", "", "run a pipeline previously persisted with 'adapipe create', instead of building one from --stage/--name")
	workers := fs.Int("workers", 0, "worker count override (0 = adaptive)")
	timeout := fs.Duration("timeout", 0, "run timeout (0 = none)")
	useGlob := fs.Bool("glob", false, "treat --input as a glob pattern and process every match")
	var stages stageList
	fs.Var(&stages, "stage", "repeatable: name:kind:algorithm[:k=v,...]")
	var metadata map[string]string
	fs.Var(funcValue(metaFlag(&metadata)), "meta", "repeatable: key=value footer metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "process", fmt.Errorf("--input is required"))
	}

	// Two ways to get a Pipeline: load a persisted one by id (archived
	// pipelines stay readable but are not usable for new runs), or build
	// an ad-hoc one from --stage flags. Only the persisted path has a run
	// recorded against it in the repository (pipelinedb.Repository's
	// referential-integrity delete-guard only means anything for
	// pipelines real runs reference).
	var repo *pipelinedb.Repository
	var p *pipeline.Pipeline
	if *pipelineID != "" {
		var err error
		repo, err = pipelinedb.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer repo.Close()
		p, err = repo.Get(context.Background(), *pipelineID)
		if err != nil {
			return err
		}
		if p.Archived {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "process", fmt.Errorf("pipeline %s (%s) is archived and cannot be used for new runs", p.ID, p.Name))
		}
	} else {
		if len(stages) == 0 {
			stages = stageList{{Name: "identity", Kind: stage.PassThrough, Algorithm: "identity", Operation: stage.Forward, ParallelSafe: true}}
		}
		var err error
		p, err = pipeline.New(*name, stages)
		if err != nil {
			return err
		}
	}

	m := metrics.NewMetrics()
	eng := engine.New(registry)
	key := loadKeyMaterial()

	// The --workers flag wins over the ADAPIPE_WORKER_COUNT hint; both
	// are still validated by the sizer, which falls back to the adaptive
	// value with a warning on rejection.
	workerOverride := *workers
	if workerOverride == 0 {
		workerOverride = cfg.WorkerCount
	}

	inputs := []string{*input}
	var err error
	if *useGlob {
		inputs, err = expandGlob(*input)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	tracer, traceShutdown, err := tracing.Init(ctx, cfg.TraceExporter, appVersion)
	if err != nil {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "process", err)
	}
	defer traceShutdown(context.Background())

	for _, in := range inputs {
		reportOut := *output
		if *useGlob || reportOut == "" {
			reportOut = in + ".adapipe"
		}

		localIn, cleanupIn, err := resolveRemoteInput(ctx, in)
		if err != nil {
			return err
		}
		localOut, uploadOut := resolveRemoteOutput(reportOut)

		start := time.Now()
		result, err := eng.Process(ctx, p, engine.ProcessOptions{
			PipelineID:        p.ID,
			InputPath:         localIn,
			OutputPath:        localOut,
			WorkerOverride:    workerOverride,
			ChunkSizeOverride: cfg.ChunkSize,
			Timeout:           *timeout,
			Metadata:          metadata,
			Key:               key,
			Security:          securityContext(),
			Logger:            logger,
			Tracer:            tracer,
			Metrics:           m,
		})
		cleanupIn()
		if err != nil {
			m.RecordRun("process", "failure", time.Since(start))
			m.RecordRunError("process", string(pipelineerr.KindOf(err)))
			recordPipelineRun(ctx, logger, repo, p.ID, "failure")
			return err
		}
		if err := uploadOut(ctx); err != nil {
			return err
		}
		m.RecordRun("process", "success", time.Since(start))
		recordPipelineRun(ctx, logger, repo, p.ID, "success")
		printResult("process", in, reportOut, result)
	}
	return nil
}

// recordPipelineRun appends a run outcome against a persisted pipeline
// (repo is nil for ad-hoc pipelines built from bare --stage flags, which
// were never inserted into the pipelines table and have nothing for
// pipeline_runs to reference). Failure to record is logged, not fatal:
// the process/restore result itself already happened.
func recordPipelineRun(ctx context.Context, logger *logrus.Logger, repo *pipelinedb.Repository, pipelineID, outcome string) {
	if repo == nil {
		return
	}
	if err := repo.RecordRun(ctx, uuid.NewString(), pipelineID, outcome); err != nil {
		logger.WithError(err).Warn("failed to record pipeline run")
	}
}

func expandGlob(pattern string) ([]string, error) {
	dir := filepath.Dir(pattern)
	base := filepath.Base(pattern)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.IoError, "process", fmt.Errorf("read glob directory %s: %w", dir, err))
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if glob.Glob(base, e.Name()) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	if len(matches) == 0 {
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, "process", fmt.Errorf("glob %q matched no files", pattern))
	}
	return matches, nil
}

func cmdRestore(logger *logrus.Logger, registry *stagesvc.Registry, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	input := fs.String("input", "", ".adapipe container path")
	output := fs.String("output", "", "restored file path")
	onExists := fs.String("on-exists", string(engine.OnExistsRefuse), "refuse-if-exists|overwrite|overwrite-backup")
	timeout := fs.Duration("timeout", 0, "run timeout (0 = none)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" || *output == "" {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "restore", fmt.Errorf("--input and --output are required"))
	}

	ctx := context.Background()
	tracer, traceShutdown, err := tracing.Init(ctx, cfg.TraceExporter, appVersion)
	if err != nil {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "restore", err)
	}
	defer traceShutdown(context.Background())

	localIn, cleanupIn, err := resolveRemoteInput(ctx, *input)
	if err != nil {
		return err
	}
	defer cleanupIn()
	localOut, uploadOut := resolveRemoteOutput(*output)

	m := metrics.NewMetrics()
	eng := engine.New(registry)
	start := time.Now()
	result, err := eng.Restore(ctx, engine.RestoreOptions{
		InputPath:  localIn,
		OutputPath: localOut,
		OnExists:   engine.OnExistsPolicy(*onExists),
		Timeout:    *timeout,
		Key:        loadKeyMaterial(),
		Security:   securityContext(),
		Logger:     logger,
		Tracer:     tracer,
		Metrics:    m,
	})
	if err != nil {
		m.RecordRun("restore", "failure", time.Since(start))
		m.RecordRunError("restore", string(pipelineerr.KindOf(err)))
		return err
	}
	m.RecordRun("restore", "success", time.Since(start))
	if err := uploadOut(ctx); err != nil {
		return err
	}

	// Best-effort: if the container's footer names a pipeline that is
	// still in the repository, record this restoration against it
	// (mirrors cmdProcess's recordPipelineRun; a pipeline_id of "" or one
	// belonging to an ad-hoc run that was never persisted is expected and
	// silently skipped, not an error).
	if result.PipelineID != "" {
		if repo, openErr := pipelinedb.Open(cfg.SQLitePath); openErr == nil {
			if _, getErr := repo.Get(ctx, result.PipelineID); getErr == nil {
				recordPipelineRun(ctx, logger, repo, result.PipelineID, "success")
			}
			repo.Close()
		}
	}

	printResult("restore", *input, *output, result)
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	name := fs.String("name", "", "pipeline display name")
	var stages stageList
	fs.Var(&stages, "stage", "repeatable: name:kind:algorithm[:k=v,...]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := pipeline.New(*name, stages)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	fmt.Printf("pipeline %q (%s) is valid: %d stages\n", p.Name, p.ID, len(p.Stages))
	return nil
}

func cmdValidateFile(args []string) error {
	fs := flag.NewFlagSet("validate-file", flag.ExitOnError)
	input := fs.String("input", "", ".adapipe container path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "validate-file", fmt.Errorf("--input is required"))
	}
	fileBytes, err := os.ReadFile(*input)
	if err != nil {
		return pipelineerr.New(pipelineerr.IoError, "validate-file", err)
	}
	header, footerLen, err := container.DecodeFooter(fileBytes)
	if err != nil {
		fmt.Printf("is_valid=false: %v\n", err)
		return err
	}
	chunkRegion := fileBytes[:len(fileBytes)-footerLen]
	sum := sha256.Sum256(chunkRegion)
	actual := hex.EncodeToString(sum[:])
	if actual != header.OutputChecksum {
		err := pipelineerr.New(pipelineerr.IntegrityViolation, "validate-file", fmt.Errorf("output checksum mismatch: recorded %s, computed %s", header.OutputChecksum, actual))
		fmt.Printf("is_valid=false: %v\n", err)
		return err
	}
	fmt.Printf("is_valid=true original_size=%d chunk_count=%d pipeline_id=%s metadata=%v\n",
		header.OriginalSize, header.ChunkCount, header.PipelineID, header.Metadata)
	return nil
}

func cmdCompare(logger *logrus.Logger, registry *stagesvc.Registry, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	left := fs.String("left", "", "first .adapipe container")
	right := fs.String("right", "", "second .adapipe container")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *left == "" || *right == "" {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "compare", fmt.Errorf("--left and --right are required"))
	}
	eng := engine.New(registry)
	tmpDir, err := os.MkdirTemp("", "adapipe-compare-*")
	if err != nil {
		return pipelineerr.New(pipelineerr.IoError, "compare", err)
	}
	defer os.RemoveAll(tmpDir)

	leftOut := filepath.Join(tmpDir, "left")
	rightOut := filepath.Join(tmpDir, "right")
	if _, err := eng.Restore(context.Background(), engine.RestoreOptions{InputPath: *left, OutputPath: leftOut, OnExists: engine.OnExistsOverwrite, Logger: logger}); err != nil {
		return err
	}
	if _, err := eng.Restore(context.Background(), engine.RestoreOptions{InputPath: *right, OutputPath: rightOut, OnExists: engine.OnExistsOverwrite, Logger: logger}); err != nil {
		return err
	}
	leftSum, err := sha256File(leftOut)
	if err != nil {
		return err
	}
	rightSum, err := sha256File(rightOut)
	if err != nil {
		return err
	}
	identical := leftSum == rightSum
	fmt.Printf("identical=%v left_sha256=%s right_sha256=%s\n", identical, leftSum, rightSum)
	if !identical {
		return pipelineerr.New(pipelineerr.IntegrityViolation, "compare", fmt.Errorf("restored outputs differ"))
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.IoError, "compare", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", pipelineerr.New(pipelineerr.IoError, "compare", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// cmdBenchmark runs a single stage through the engine repeatedly and
// either prints the timings in Go-benchmark text format, or, when
// --baseline is given, feeds the new run and the baseline through
// benchstat and reports a statistically-aware regression verdict.
func cmdBenchmark(logger *logrus.Logger, registry *stagesvc.Registry, args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ExitOnError)
	name := fs.String("name", "process", "benchmark name, shown in benchstat output")
	kind := fs.String("kind", string(stage.Compression), "stage kind: Compression, Encryption, Transform")
	algorithm := fs.String("algorithm", "gzip", "stage algorithm name")
	size := fs.Int64("size", 4*1024*1024, "generated input size in bytes")
	iterations := fs.Int("iterations", 10, "number of iterations")
	baselinePath := fs.String("baseline", "", "optional prior run's benchmark-format file to compare against")
	updateBaseline := fs.String("update-baseline", "", "write this run's benchmark-format output to the given path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key := loadKeyMaterial()
	if stage.Kind(*kind) == stage.Encryption && key == nil {
		key = &stagesvc.KeyMaterial{Key: make([]byte, 32), Algorithm: *algorithm}
	}

	durations, err := bench.Run(context.Background(), bench.Config{
		Name:     *name,
		Registry: registry,
		Stages: []stage.Stage{
			{Name: *name, Kind: stage.Kind(*kind), Algorithm: *algorithm, Operation: stage.Forward, ParallelSafe: true},
		},
		Key:        key,
		InputSize:  *size,
		Iterations: *iterations,
		Logger:     logger,
	})
	if err != nil {
		return pipelineerr.New(pipelineerr.InternalError, "benchmark", err)
	}
	output := bench.FormatBenchmark(*name, durations)

	if *updateBaseline != "" {
		if err := os.WriteFile(*updateBaseline, output, 0o644); err != nil {
			return pipelineerr.New(pipelineerr.IoError, "benchmark", err)
		}
		fmt.Printf("baseline written to %s\n", *updateBaseline)
		return nil
	}

	if *baselinePath == "" {
		os.Stdout.Write(output)
		return nil
	}

	baseline, err := os.ReadFile(*baselinePath)
	if err != nil {
		return pipelineerr.New(pipelineerr.IoError, "benchmark", fmt.Errorf("read baseline: %w", err))
	}
	report, err := bench.Compare("baseline", baseline, "candidate", output)
	if err != nil {
		return pipelineerr.New(pipelineerr.InternalError, "benchmark", err)
	}
	fmt.Print(report)
	return nil
}

// resolveRemoteInput downloads path (if it is an s3:// URL) to a local
// temp file and returns the local path to process, plus a cleanup func.
// Local paths pass through untouched: the engine itself only ever sees
// local files, remote storage is a source/sink wrapped around it.
func resolveRemoteInput(ctx context.Context, path string) (string, func(), error) {
	bucket, key, ok := remote.ParseURL(path)
	if !ok {
		return path, func() {}, nil
	}
	client, err := remoteClientFromEnv(ctx)
	if err != nil {
		return "", nil, err
	}
	body, err := client.Download(ctx, bucket, key)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "adapipe-remote-in-*")
	if err != nil {
		return "", nil, pipelineerr.New(pipelineerr.IoError, "remote", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, pipelineerr.New(pipelineerr.IoError, "remote", err)
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// resolveRemoteOutput returns a local path to write to; if out is an
// s3:// URL, upload uploads the local file there once processing
// succeeds.
func resolveRemoteOutput(out string) (local string, upload func(ctx context.Context) error) {
	bucket, key, ok := remote.ParseURL(out)
	if !ok {
		return out, func(context.Context) error { return nil }
	}
	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("adapipe-remote-out-%d", time.Now().UnixNano()))
	return tmp, func(ctx context.Context) error {
		defer os.Remove(tmp)
		client, err := remoteClientFromEnv(ctx)
		if err != nil {
			return err
		}
		f, err := os.Open(tmp)
		if err != nil {
			return pipelineerr.New(pipelineerr.IoError, "remote", err)
		}
		defer f.Close()
		return client.Upload(ctx, bucket, key, f)
	}
}

func remoteClientFromEnv(ctx context.Context) (remote.Client, error) {
	return remote.NewClient(ctx, remote.Config{
		Endpoint:       os.Getenv("ADAPIPE_S3_ENDPOINT"),
		Region:         os.Getenv("ADAPIPE_S3_REGION"),
		AccessKey:      os.Getenv("ADAPIPE_S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("ADAPIPE_S3_SECRET_KEY"),
		ForcePathStyle: os.Getenv("ADAPIPE_S3_PATH_STYLE") == "true",
	})
}

func cmdCreate(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "pipeline display name")
	var stages stageList
	fs.Var(&stages, "stage", "repeatable: name:kind:algorithm[:k=v,...]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := pipeline.New(*name, stages)
	if err != nil {
		return err
	}
	repo, err := pipelinedb.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Create(context.Background(), p); err != nil {
		return err
	}
	fmt.Printf("created pipeline %s (%s)\n", p.Name, p.ID)
	return nil
}

func cmdList(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	includeArchived := fs.Bool("include-archived", false, "include archived pipelines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := pipelinedb.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()
	pipelines, err := repo.List(context.Background(), *includeArchived)
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		fmt.Printf("%s\t%s\tarchived=%v\tstages=%d\n", p.ID, p.Name, p.Archived, len(p.Stages))
	}
	return nil
}

func cmdShow(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.String("id", "", "pipeline id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := pipelinedb.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()
	p, err := repo.Get(context.Background(), *id)
	if err != nil {
		return err
	}
	enc, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return pipelineerr.New(pipelineerr.SerializationError, "show", err)
	}
	fmt.Println(string(enc))
	return nil
}

func cmdDelete(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "pipeline id")
	archiveOnly := fs.Bool("archive", false, "soft-delete instead of hard delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := pipelinedb.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()
	if *archiveOnly {
		return repo.Archive(context.Background(), *id)
	}
	return repo.Delete(context.Background(), *id)
}

func cmdServe(logger *logrus.Logger, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.ListenAddr, "listen address")
	masterKeyID := fs.String("kms-key-id", "local-default", "local KMS key id for health checks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_, shutdown, err := tracing.Init(ctx, cfg.TraceExporter, appVersion)
	if err != nil {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "serve", err)
	}
	defer shutdown(context.Background())

	m := metrics.NewMetrics()

	// KMIP wins over the local master key when both are configured: a
	// deployment that points at a real KMS should never silently fall
	// back to an env-var key.
	var km kms.Manager
	if endpoint := os.Getenv("ADAPIPE_KMIP_ENDPOINT"); endpoint != "" {
		km, err = kms.NewKMIPManager(endpoint,
			os.Getenv("ADAPIPE_KMIP_CERT"),
			os.Getenv("ADAPIPE_KMIP_KEY"),
			os.Getenv("ADAPIPE_KMIP_KEY_UID"))
		if err != nil {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "serve", err)
		}
		defer km.Close(context.Background())
	} else if masterKeyHex := os.Getenv("ADAPIPE_MASTER_KEY"); masterKeyHex != "" {
		if key, err := decodeHexKey(masterKeyHex); err == nil {
			km, _ = kms.NewLocalManager(key, *masterKeyID)
		}
	}
	var healthCheck func(context.Context) error
	if km != nil {
		healthCheck = km.HealthCheck
	}

	router := servehttp.NewRouter(logger, servehttp.Dependencies{KeyManagerHealthCheck: healthCheck}, m)
	return servehttp.Serve(ctx, *addr, router, logger)
}

func printResult(kind, in, out string, r engine.Result) {
	fmt.Printf("%s: %s -> %s\n", kind, in, out)
	fmt.Printf("  bytes_in=%d bytes_out=%d chunks=%d elapsed=%s original_sha256=%s output_sha256=%s verified=%v pipeline_id=%s\n",
		r.BytesIn, r.BytesOut, r.ChunkCount, r.Elapsed, r.OriginalSHA256, r.OutputSHA256, r.Verified, r.PipelineID)
}


