// Package executor dispatches one chunk through one stage via the
// registry (C6). It performs no IO and no hashing: it is a pure
// function of (stage, chunk, context).
package executor

import (
	"fmt"
	"time"

	"github.com/kenneth/adapipe/internal/chunk"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stage"
	"github.com/kenneth/adapipe/internal/stagesvc"
)

// Execute runs a single chunk through a single stage.
func Execute(registry *stagesvc.Registry, st stage.Stage, c chunk.Chunk, sc *stagesvc.Context) (chunk.Chunk, error) {
	svc, err := registry.Resolve(st)
	if err != nil {
		return chunk.Chunk{}, err
	}

	sc.Operation = st.Operation
	out, err := svc.ProcessChunk(c, st.Parameters, sc)
	if err != nil {
		// Preserve the stage service's own error kind (e.g. IntegrityViolation
		// on an AEAD auth failure) rather than collapsing every failure to
		// InternalError; only attach the stage name and algorithm.
		kind := pipelineerr.KindOf(err)
		return chunk.Chunk{}, pipelineerr.New(kind, st.Name, fmt.Errorf("stage %s (%s): %w", st.Name, st.Algorithm, err))
	}

	if !chunk.SameIdentity(c, out) {
		return chunk.Chunk{}, pipelineerr.New(pipelineerr.IntegrityViolation, st.Name, fmt.Errorf("stage service altered chunk identity: in={seq:%d off:%d final:%v} out={seq:%d off:%d final:%v}", c.Sequence, c.Offset, c.Final, out.Sequence, out.Offset, out.Final))
	}
	return out, nil
}

// StageObserver is invoked after each stage execution with the payload
// sizes on either side of the stage and the elapsed wall-clock time.
// The engine uses it to feed per-stage metrics without the executor
// knowing anything about Prometheus.
type StageObserver func(st stage.Stage, inLen, outLen int, elapsed time.Duration, err error)

// ExecuteChain runs a chunk through every stage of stages, in order.
func ExecuteChain(registry *stagesvc.Registry, stages []stage.Stage, c chunk.Chunk, sc *stagesvc.Context) (chunk.Chunk, error) {
	return ExecuteChainObserved(registry, stages, c, sc, nil)
}

// ExecuteChainObserved is ExecuteChain with a per-stage observer hook.
func ExecuteChainObserved(registry *stagesvc.Registry, stages []stage.Stage, c chunk.Chunk, sc *stagesvc.Context, observe StageObserver) (chunk.Chunk, error) {
	cur := c
	for _, st := range stages {
		start := time.Now()
		next, err := Execute(registry, st, cur, sc)
		if observe != nil {
			outLen := 0
			if err == nil {
				outLen = len(next.Payload)
			}
			observe(st, len(cur.Payload), outLen, time.Since(start), err)
		}
		if err != nil {
			return chunk.Chunk{}, err
		}
		cur = next
	}
	return cur, nil
}
