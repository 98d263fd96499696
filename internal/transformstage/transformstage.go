// Package transformstage implements Transform-kind stages: an identity
// pass-through and a base64 codec. Direction is selected via
// stagesvc.Context.Operation, the same convention compressstage uses.
package transformstage

import (
	"encoding/base64"
	"fmt"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

type passThroughService struct{}

func NewPassThrough() stagesvc.Service { return passThroughService{} }

func (passThroughService) Algorithm() string     { return "identity" }
func (passThroughService) Kind() stage.Kind      { return stage.PassThrough }
func (passThroughService) SupportsForward() bool { return true }
func (passThroughService) SupportsReverse() bool { return true }
func (passThroughService) ParallelSafe() bool    { return true }

func (passThroughService) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	return c, nil
}

type base64Service struct{}

func NewBase64() stagesvc.Service { return base64Service{} }

func (base64Service) Algorithm() string     { return "base64" }
func (base64Service) Kind() stage.Kind      { return stage.Transform }
func (base64Service) SupportsForward() bool { return true }
func (base64Service) SupportsReverse() bool { return true }
func (base64Service) ParallelSafe() bool    { return true }

func (base64Service) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	if sc.Operation == stage.Reverse {
		decoded, err := base64.StdEncoding.DecodeString(string(c.Payload))
		if err != nil {
			return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, "transform:base64", fmt.Errorf("invalid base64 payload: %w", err))
		}
		return c.WithPayload(decoded), nil
	}
	encoded := base64.StdEncoding.EncodeToString(c.Payload)
	return c.WithPayload([]byte(encoded)), nil
}
