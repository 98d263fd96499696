// Package stage defines the reversible processing step: kind,
// algorithm, parameters and ordering.
package stage

import (
	"fmt"
	"regexp"

	"github.com/kenneth/adapipe/internal/pipelineerr"
)

// Kind classifies what a stage does to a chunk's bytes.
type Kind string

const (
	Compression Kind = "Compression"
	Encryption  Kind = "Encryption"
	Checksum    Kind = "Checksum"
	PassThrough Kind = "PassThrough"
	Transform   Kind = "Transform"
)

// Operation is the direction a stage is currently configured to run.
type Operation string

const (
	Forward Operation = "Forward"
	Reverse Operation = "Reverse"
)

var algorithmPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,63}$`)

const maxParameters = 1000
const maxParamKeyLen = 128
const maxParamValueLen = 64 * 1024

var paramKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// Stage is one step of a Pipeline.
type Stage struct {
	Name         string
	Kind         Kind
	Algorithm    string
	Parameters   map[string]string
	Order        uint32
	Operation    Operation
	ParallelSafe bool
}

// ValidateAlgorithm checks the algorithm name syntax: 1..64 chars of
// [a-z0-9-], no leading digit/hyphen, no trailing hyphen, no "--".
func ValidateAlgorithm(name string) error {
	if !algorithmPattern.MatchString(name) {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "algorithm:"+name, fmt.Errorf("algorithm name must match [a-z][a-z0-9-]{0,63} with no trailing hyphen or doubled hyphen"))
	}
	if name[len(name)-1] == '-' {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "algorithm:"+name, fmt.Errorf("algorithm name must not end in a hyphen"))
	}
	for i := 0; i+1 < len(name); i++ {
		if name[i] == '-' && name[i+1] == '-' {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "algorithm:"+name, fmt.Errorf("algorithm name must not contain a doubled hyphen"))
		}
	}
	return nil
}

// ValidateParameters enforces the parameter-map bounds: at most 1000
// keys, key length/charset, bounded values.
func ValidateParameters(params map[string]string) error {
	if len(params) > maxParameters {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "parameters", fmt.Errorf("%d parameters exceeds the %d key limit", len(params), maxParameters))
	}
	for k, v := range params {
		if len(k) == 0 || len(k) > maxParamKeyLen {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "parameters", fmt.Errorf("parameter key %q length out of bounds", k))
		}
		if k[0] == '-' || k[0] == '.' {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "parameters", fmt.Errorf("parameter key %q must not start with '-' or '.'", k))
		}
		if !paramKeyPattern.MatchString(k) {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "parameters", fmt.Errorf("parameter key %q contains invalid characters", k))
		}
		if len(v) > maxParamValueLen {
			return pipelineerr.New(pipelineerr.InvalidConfiguration, "parameters", fmt.Errorf("parameter %q value exceeds %d bytes", k, maxParamValueLen))
		}
	}
	return nil
}

// Validate checks a single stage's internal consistency. Pipeline is
// responsible for cross-stage ordering/compatibility checks.
func (s Stage) Validate() error {
	if s.Name == "" {
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "stage", fmt.Errorf("stage name must not be empty"))
	}
	if err := ValidateAlgorithm(s.Algorithm); err != nil {
		return err
	}
	if err := ValidateParameters(s.Parameters); err != nil {
		return err
	}
	switch s.Kind {
	case Compression, Encryption, Checksum, PassThrough, Transform:
	default:
		return pipelineerr.New(pipelineerr.InvalidConfiguration, "stage:"+s.Name, fmt.Errorf("unknown stage kind %q", s.Kind))
	}
	return nil
}

// Compatible reports whether two adjacent user stages may sit next to
// each other. Every kind is currently mutually compatible; the
// function exists so a future matrix has one call site.
func Compatible(left, right Kind) bool {
	return true
}

// Reversed returns a copy of s with Operation flipped, used when
// synthesising a restoration pipeline.
func (s Stage) Reversed() Stage {
	op := Forward
	if s.Operation == Forward {
		op = Reverse
	}
	cp := s
	cp.Operation = op
	return cp
}

// HasDataInverse reports whether a stage of this kind changes bytes and
// therefore needs an inverse pass during restoration. Checksum and
// PassThrough stages are no-ops from a data-transform perspective.
func (k Kind) HasDataInverse() bool {
	return k == Compression || k == Encryption || k == Transform
}
