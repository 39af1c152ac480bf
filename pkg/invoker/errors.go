package invoker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyQuery is returned for empty or whitespace-only queries
	ErrEmptyQuery = errors.New("research query is required")

	// ErrTimeout is wrapped by TimeoutError
	ErrTimeout = errors.New("invocation timed out")

	// ErrExecution is wrapped by ExecutionError
	ErrExecution = errors.New("agent execution failed")

	// ErrInvalidConfig is returned by New for unusable configuration
	ErrInvalidConfig = errors.New("invalid invoker config")
)

// TimeoutError reports that the wall-clock bound elapsed
type TimeoutError struct {
	Bound time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis exceeded the maximum execution time of %d seconds", int(e.Bound.Seconds()))
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// ExecutionError reports a failed invocation
type ExecutionError struct {
	Kind     FailureKind
	Message  string
	ExitCode int
}

func (e *ExecutionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s failure (exit code %d): %s", e.Kind, e.ExitCode, e.Message)
	}
	return fmt.Sprintf("%s failure: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	if e.Kind == KindValidation {
		return ErrEmptyQuery
	}
	return ErrExecution
}
