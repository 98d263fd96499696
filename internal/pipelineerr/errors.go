// Package pipelineerr defines the error taxonomy shared across the
// engine, container codec, pipeline and CLI layers.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure. Kinds are compared with Is,
// never with string equality against Error().
type Kind string

const (
	InvalidConfiguration Kind = "InvalidConfiguration"
	IncompatibleStage    Kind = "IncompatibleStage"
	IoError              Kind = "IoError"
	SerializationError   Kind = "SerializationError"
	ValidationError      Kind = "ValidationError"
	IntegrityViolation   Kind = "IntegrityViolation"
	PipelineNotFound     Kind = "PipelineNotFound"
	DatabaseError        Kind = "DatabaseError"
	Cancelled            Kind = "Cancelled"
	ResourceExhausted    Kind = "ResourceExhausted"
	InternalError        Kind = "InternalError"
)

// Error wraps an underlying error with a taxonomy Kind and the operation
// that was being attempted (a stage name, a file path, a chunk index).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether the first *Error in err's chain has the given Kind.
// Kinds of *Error values wrapped further down are not examined.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to InternalError when err
// was not produced by this package.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return InternalError
}

// ExitCode maps a Kind onto the sysexits convention used by the CLI.
func ExitCode(kind Kind) int {
	switch kind {
	case InvalidConfiguration:
		return 64 // EX_USAGE
	case IntegrityViolation, ValidationError, SerializationError:
		return 65 // EX_DATAERR
	case PipelineNotFound:
		return 66 // EX_NOINPUT
	case IncompatibleStage:
		return 65
	case IoError:
		return 74 // EX_IOERR
	case ResourceExhausted, Cancelled:
		return 75 // EX_TEMPFAIL
	case DatabaseError:
		return 74
	default:
		return 70 // EX_SOFTWARE
	}
}
