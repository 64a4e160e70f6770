// Package apperrors defines the error taxonomy shared across the pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a table or concept lookup missed.
	ErrNotFound = errors.New("not found")

	// ErrCacheUnavailable indicates schema introspection failed and no
	// prior snapshot exists to fall back on.
	ErrCacheUnavailable = errors.New("schema cache unavailable")
)

// GenerationError is fatal to a pipeline run: the language model returned
// a malformed SQL envelope, or kept failing past the retry cap.
type GenerationError struct {
	Attempts int
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("sql generation failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// ValidationFailure is fatal to a pipeline run and names the stage that
// rejected the statement: syntax, security, or business.
type ValidationFailure struct {
	Stage   string
	Message string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed at %s stage: %s", e.Stage, e.Message)
}

// ExecutionError is captured on the validation report, never raised out
// of the pipeline: a query that fails to execute is still valid.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// StageError wraps a stage failure with the originating stage name so the
// orchestrator can report where a run died.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
