package sandbox

import (
	"context"
	"time"
)

// Config defines sandbox configuration
type Config struct {
	// Timeout is used when a request does not carry its own
	Timeout time.Duration `json:"timeout"`

	// KillGrace is how long a process group gets between SIGTERM and SIGKILL
	KillGrace time.Duration `json:"kill_grace"`

	// MaxOutputBytes bounds each captured stream; the tail is kept
	MaxOutputBytes int `json:"max_output_bytes"`

	// FilesystemAccess defines which working directories are allowed
	FilesystemAccess FilesystemAccess `json:"filesystem_access"`
}

// FilesystemAccess defines filesystem access rules
type FilesystemAccess struct {
	// AllowedPaths lists paths that can be used as working directory
	AllowedPaths []string `json:"allowed_paths"`

	// DeniedPaths lists paths that cannot be used as working directory
	DeniedPaths []string `json:"denied_paths"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	// Command is the command to execute
	Command string `json:"command"`

	// Args are the command arguments
	Args []string `json:"args"`

	// Env is the complete environment of the child; nothing is inherited
	Env map[string]string `json:"env"`

	// WorkingDir is the working directory
	WorkingDir string `json:"working_dir"`

	// Stdin is the standard input
	Stdin []byte `json:"stdin"`

	// Timeout is the execution timeout
	Timeout time.Duration `json:"timeout"`
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	// Stdout is the standard output
	Stdout []byte `json:"stdout"`

	// Stderr is the standard error
	Stderr []byte `json:"stderr"`

	// ExitCode is the process exit code, -1 when the process was killed by us
	ExitCode int `json:"exit_code"`

	// Duration is the execution duration
	Duration time.Duration `json:"duration"`

	// TimedOut reports whether the timeout elapsed before the process exited
	TimedOut bool `json:"timed_out"`

	// Truncated reports whether either stream exceeded MaxOutputBytes
	Truncated bool `json:"truncated"`
}

// Executor runs one command to completion
type Executor interface {
	// Execute runs a command and waits for it, bounded by the request timeout
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Timeout:        600 * time.Second,
		KillGrace:      2 * time.Second,
		MaxOutputBytes: 8 << 20,
		FilesystemAccess: FilesystemAccess{
			DeniedPaths: []string{"/etc", "/sys", "/proc"},
		},
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	if cfg.Timeout < 0 {
		return ErrInvalidTimeout
	}

	if cfg.KillGrace < 0 {
		return ErrInvalidKillGrace
	}

	if cfg.MaxOutputBytes < 0 {
		return ErrInvalidOutputLimit
	}

	return nil
}
