// Package compressstage implements the Compression stage services:
// gzip and zstd via klauspost/compress, and snappy via golang/snappy
// as a fast, low-ratio alternative. Each operates on one chunk's bytes
// independently, so chunks remain parallel-safe. Each service supports
// both directions; the executor tells it which one to run via
// stagesvc.Context.Operation.
package compressstage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

type gzipService struct{}

func NewGzip() stagesvc.Service { return gzipService{} }

func (gzipService) Algorithm() string     { return "gzip" }
func (gzipService) Kind() stage.Kind      { return stage.Compression }
func (gzipService) SupportsForward() bool { return true }
func (gzipService) SupportsReverse() bool { return true }
func (gzipService) ParallelSafe() bool    { return true }

func (gzipService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	if sc.Operation == stage.Reverse {
		return gzipDecode(c)
	}
	return gzipEncode(c, params)
}

func gzipEncode(c chunk.Chunk, params map[string]string) (chunk.Chunk, error) {
	level := gzip.DefaultCompression
	if lvl, ok := params["level"]; ok {
		parsed, err := parseLevel(lvl, gzip.BestSpeed, gzip.BestCompression)
		if err != nil {
			return chunk.Chunk{}, err
		}
		level = parsed
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.InvalidConfiguration, "compression:gzip", err)
	}
	if _, err := w.Write(c.Payload); err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.InternalError, "compression:gzip", err)
	}
	if err := w.Close(); err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.InternalError, "compression:gzip", err)
	}
	return c.WithPayload(buf.Bytes()), nil
}

func gzipDecode(c chunk.Chunk) (chunk.Chunk, error) {
	r, err := gzip.NewReader(bytes.NewReader(c.Payload))
	if err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, "compression:gzip", fmt.Errorf("open gzip stream: %w", err))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, "compression:gzip", fmt.Errorf("read gzip stream: %w", err))
	}
	return c.WithPayload(out), nil
}

func parseLevel(s string, min, max int) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, pipelineerr.New(pipelineerr.InvalidConfiguration, "compression", fmt.Errorf("invalid level %q: %w", s, err))
	}
	if v < min || v > max {
		return 0, pipelineerr.New(pipelineerr.InvalidConfiguration, "compression", fmt.Errorf("level %d out of range [%d, %d]", v, min, max))
	}
	return v, nil
}

type zstdService struct{}

func NewZstd() stagesvc.Service { return zstdService{} }

func (zstdService) Algorithm() string     { return "zstd" }
func (zstdService) Kind() stage.Kind      { return stage.Compression }
func (zstdService) SupportsForward() bool { return true }
func (zstdService) SupportsReverse() bool { return true }
func (zstdService) ParallelSafe() bool    { return true }

func (zstdService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	if sc.Operation == stage.Reverse {
		return zstdDecode(c)
	}
	return zstdEncode(c)
}

func zstdEncode(c chunk.Chunk) (chunk.Chunk, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.InternalError, "compression:zstd", err)
	}
	if _, err := w.Write(c.Payload); err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.InternalError, "compression:zstd", err)
	}
	if err := w.Close(); err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.InternalError, "compression:zstd", err)
	}
	return c.WithPayload(buf.Bytes()), nil
}

func zstdDecode(c chunk.Chunk) (chunk.Chunk, error) {
	r, err := zstd.NewReader(bytes.NewReader(c.Payload))
	if err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, "compression:zstd", fmt.Errorf("open zstd stream: %w", err))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, "compression:zstd", fmt.Errorf("read zstd stream: %w", err))
	}
	return c.WithPayload(out), nil
}

type snappyService struct{}

func NewSnappy() stagesvc.Service { return snappyService{} }

func (snappyService) Algorithm() string     { return "snappy" }
func (snappyService) Kind() stage.Kind      { return stage.Compression }
func (snappyService) SupportsForward() bool { return true }
func (snappyService) SupportsReverse() bool { return true }
func (snappyService) ParallelSafe() bool    { return true }

func (snappyService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	if sc.Operation == stage.Reverse {
		decoded, err := snappy.Decode(nil, c.Payload)
		if err != nil {
			return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, "compression:snappy", fmt.Errorf("snappy decode: %w", err))
		}
		return c.WithPayload(decoded), nil
	}
	encoded := snappy.Encode(nil, c.Payload)
	return c.WithPayload(encoded), nil
}
