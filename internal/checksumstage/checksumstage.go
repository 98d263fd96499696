// Package checksumstage implements the bracket Checksum/sha256 stages
// every Pipeline auto-inserts. A checksum stage never alters
// the chunk payload; it exists so the executor's chain has a uniform
// slot for the input/output digest steps, with the actual running
// digest maintained by the engine outside the stage chain.
package checksumstage

import (
	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

type sha256Service struct{}

func NewSHA256() stagesvc.Service { return sha256Service{} }

func (sha256Service) Algorithm() string     { return "sha256" }
func (sha256Service) Kind() stage.Kind      { return stage.Checksum }
func (sha256Service) SupportsForward() bool { return true }
func (sha256Service) SupportsReverse() bool { return true }
func (sha256Service) ParallelSafe() bool    { return true }

func (sha256Service) ProcessChunk(c chunk.Chunk, params map[string]string, sc *stagesvc.Context) (chunk.Chunk, error) {
	return c, nil
}
