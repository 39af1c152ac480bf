package sandbox

import "errors"

var (
	// ErrEmptyCommand is returned when a request carries no command
	ErrEmptyCommand = errors.New("command is required")

	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0)")

	// ErrInvalidKillGrace is returned when the kill grace period is invalid
	ErrInvalidKillGrace = errors.New("invalid kill grace period (must be >= 0)")

	// ErrInvalidOutputLimit is returned when the captured output limit is invalid
	ErrInvalidOutputLimit = errors.New("invalid output limit (must be >= 0)")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrCanceled is returned when the caller cancels the execution
	ErrCanceled = errors.New("execution canceled")

	// ErrStartFailed is returned when the process could not be started
	ErrStartFailed = errors.New("failed to start process")

	// ErrFilesystemAccessDenied is returned when filesystem access is denied
	ErrFilesystemAccessDenied = errors.New("filesystem access denied")
)
