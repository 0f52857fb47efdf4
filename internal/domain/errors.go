package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation signals one or more malformed criterion values.
	ErrValidation = errors.New("validation failed")
	// ErrConflict signals mutually exclusive request modes.
	ErrConflict = errors.New("conflicting request modes")
	// ErrUpstream signals an unreachable or erroring index backend.
	ErrUpstream = errors.New("index backend error")
	// ErrPipeline signals a terminal mid-stream failure of a bulk job.
	ErrPipeline = errors.New("pipeline failure")
	// ErrRetryableChunk signals a transient chunk failure eligible for retry.
	ErrRetryableChunk = errors.New("retryable chunk failure")
	// ErrAdmission signals too many concurrent jobs for a caller.
	ErrAdmission = errors.New("too many concurrent jobs")
	// ErrJobNotFound signals an unknown bulk job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrAlreadyCancelled signals a repeated cancellation of the same job.
	ErrAlreadyCancelled = errors.New("already cancelled")
	// ErrResultNotReady signals a result fetch on an unfinished job.
	ErrResultNotReady = errors.New("result not ready")
)

// ValidationErrors collects every criterion problem so the caller sees all of
// them in one response instead of fixing them one at a time.
type ValidationErrors struct {
	Problems []FieldError
}

// FieldError describes one invalid criterion value.
type FieldError struct {
	Field  string
	Reason string
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = fmt.Sprintf("%s: %s", p.Field, p.Reason)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationErrors) Unwrap() error { return ErrValidation }

// Add appends a field problem.
func (e *ValidationErrors) Add(field, reason string) {
	e.Problems = append(e.Problems, FieldError{Field: field, Reason: reason})
}

// HasAny reports whether any problem was collected.
func (e *ValidationErrors) HasAny() bool { return len(e.Problems) > 0 }
