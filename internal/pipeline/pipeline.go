// Package pipeline implements the ordered, bracketed stage list and
// the synthesis of an inverse pipeline from a container footer.
package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kenneth/adapipe/internal/container"
	"github.com/kenneth/adapipe/internal/pipelineerr"
	"github.com/kenneth/adapipe/internal/stage"
)

const (
	inputChecksumName  = "input_checksum"
	outputChecksumName = "output_checksum"
	checksumAlgorithm  = "sha256"
	restorePrefix      = "__restore__"
)

// Pipeline is a named, ordered, bracketed stage list. Its identity is
// an opaque UUIDv4 string.
type Pipeline struct {
	ID       string
	Name     string
	Stages   []stage.Stage
	Archived bool
}

func checksumStage(name string, order uint32) stage.Stage {
	return stage.Stage{
		Name:         name,
		Kind:         stage.Checksum,
		Algorithm:    checksumAlgorithm,
		Parameters:   map[string]string{},
		Order:        order,
		Operation:    stage.Forward,
		ParallelSafe: true,
	}
}

// New builds a pipeline from a display name and the user-supplied
// middle stages, bracketing them with input_checksum (order 0) and
// output_checksum (last order), and renumbering the user stages 1..n
// so a pipeline always hashes its own input and output.
func New(name string, userStages []stage.Stage) (*Pipeline, error) {
	if name == "" {
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("pipeline name must not be empty"))
	}
	if len(userStages) == 0 {
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("pipeline must have at least one user stage"))
	}

	stages := make([]stage.Stage, 0, len(userStages)+2)
	stages = append(stages, checksumStage(inputChecksumName, 0))
	for i, s := range userStages {
		s.Order = uint32(i + 1)
		stages = append(stages, s)
	}
	stages = append(stages, checksumStage(outputChecksumName, uint32(len(userStages)+1)))

	p := &Pipeline{
		ID:     uuid.NewString(),
		Name:   name,
		Stages: stages,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate re-checks ordering, non-empty stage list, and pairwise
// compatibility.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("pipeline name must not be empty"))
	}
	if len(p.Stages) < 2 {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("pipeline must have a bracketed stage list of at least 2 stages"))
	}
	if p.Stages[0].Name != inputChecksumName || p.Stages[0].Order != 0 {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("first stage must be %q at order 0", inputChecksumName))
	}
	last := p.Stages[len(p.Stages)-1]
	if last.Name != outputChecksumName {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("last stage must be %q", outputChecksumName))
	}

	var prevOrder uint32
	for i, s := range p.Stages {
		if err := s.Validate(); err != nil {
			return err
		}
		if i > 0 && s.Order <= prevOrder {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("stage order must strictly ascend: stage %q has order %d after %d", s.Name, s.Order, prevOrder))
		}
		prevOrder = s.Order
		if i > 0 {
			if !stage.Compatible(p.Stages[i-1].Kind, s.Kind) {
				return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("stage %q is incompatible with preceding stage %q", s.Name, p.Stages[i-1].Name))
			}
		}
	}
	return nil
}

// UserStages returns the stages between the input/output checksum
// brackets.
func (p *Pipeline) UserStages() []stage.Stage {
	if len(p.Stages) <= 2 {
		return nil
	}
	return p.Stages[1 : len(p.Stages)-1]
}

// AddStage appends a stage after the current last user stage, renumbering
// the trailing output_checksum stage to keep order strictly ascending
// and keeping the checksum bracket in place.
func (p *Pipeline) AddStage(s stage.Stage) error {
	user := p.UserStages()
	if len(user) > 0 {
		if !stage.Compatible(user[len(user)-1].Kind, s.Kind) {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("stage %q is incompatible with current last stage %q", s.Name, user[len(user)-1].Name))
		}
	}
	insertOrder := p.Stages[len(p.Stages)-1].Order
	s.Order = insertOrder
	out := p.Stages[len(p.Stages)-1]
	out.Order = insertOrder + 1

	newStages := make([]stage.Stage, 0, len(p.Stages)+1)
	newStages = append(newStages, p.Stages[:len(p.Stages)-1]...)
	newStages = append(newStages, s, out)
	p.Stages = newStages
	return p.Validate()
}

// RemoveStage removes the user stage named name, failing if doing so
// would leave fewer than one user stage.
func (p *Pipeline) RemoveStage(name string) error {
	user := p.UserStages()
	if len(user) <= 1 {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("cannot remove stage %q: pipeline would have fewer than one user stage", name))
	}
	newStages := make([]stage.Stage, 0, len(p.Stages)-1)
	found := false
	for _, s := range p.Stages {
		if s.Name == name && s.Kind != stage.Checksum {
			found = true
			continue
		}
		newStages = append(newStages, s)
	}
	if !found {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "pipeline", fmt.Errorf("no user stage named %q", name))
	}
	p.Stages = newStages
	return p.Validate()
}

// ToProcessingSteps converts the pipeline's stages into the footer's
// processing_steps records, in their current order.
func (p *Pipeline) ToProcessingSteps() []container.ProcessingStep {
	steps := make([]container.ProcessingStep, 0, len(p.Stages))
	for _, s := range p.Stages {
		steps = append(steps, container.ProcessingStep{
			StepType:   container.StepType{Kind: string(s.Kind)},
			Algorithm:  s.Algorithm,
			Parameters: s.Parameters,
			Order:      s.Order,
		})
	}
	return steps
}

// SynthesizeRestoration builds the inverse pipeline from a container
// footer: the footer's processing_steps in reverse order, each with
// Operation flipped to Reverse, skipping Checksum and PassThrough steps
// (they have no data-transforming inverse), wrapped in a synthetic,
// non-persistable pipeline named "__restore__<originalPipelineID>".
func SynthesizeRestoration(steps []container.ProcessingStep, originalPipelineID string) (*Pipeline, error) {
	reversed := make([]stage.Stage, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		kind := stage.Kind(st.StepType.Kind)
		if !kind.HasDataInverse() {
			continue
		}
		reversed = append(reversed, stage.Stage{
			Name:         fmt.Sprintf("restore_%s_%d", st.Algorithm, st.Order),
			Kind:         kind,
			Algorithm:    st.Algorithm,
			Parameters:   st.Parameters,
			Order:        uint32(len(reversed)),
			Operation:    stage.Reverse,
			ParallelSafe: true,
		})
	}
	p := &Pipeline{
		ID:     restorePrefix + originalPipelineID,
		Name:   restorePrefix + originalPipelineID,
		Stages: reversed,
	}
	return p, nil
}

// IsRestoration reports whether p is a synthetic, non-persistable
// restoration pipeline.
func (p *Pipeline) IsRestoration() bool {
	return len(p.ID) >= len(restorePrefix) && p.ID[:len(restorePrefix)] == restorePrefix
}
