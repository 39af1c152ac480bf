package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HostSandbox runs commands as host processes with a scrubbed environment,
// a wall-clock bound and process-group cleanup.
type HostSandbox struct {
	config Config
	mu     sync.RWMutex
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config) (*HostSandbox, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HostSandbox{config: config}, nil
}

// GetConfig returns the sandbox configuration
func (h *HostSandbox) GetConfig() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// SetConfig updates the sandbox configuration
func (h *HostSandbox) SetConfig(config Config) error {
	if err := ValidateConfig(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.config = config
	return nil
}

// Execute runs a command in the sandbox. The process group is always
// reaped before Execute returns. A command that ignores SIGTERM on timeout
// is killed after KillGrace, so a timed out Execute returns within
// Timeout + KillGrace.
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	cfg := h.GetConfig()

	if req.Command == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	// Check filesystem access
	if err := h.checkFilesystemAccess(cfg, req.WorkingDir); err != nil {
		return ExecuteResult{}, err
	}

	// Apply timeout
	timeout := req.Timeout
	if timeout == 0 {
		timeout = cfg.Timeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	cmd.Env = buildEnvironment(req.Env)

	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return terminateGroup(cmd.Process)
	}
	grace := cfg.KillGrace
	if grace == 0 {
		grace = DefaultConfig().KillGrace
	}
	cmd.WaitDelay = grace

	stdout := newTailBuffer(cfg.MaxOutputBytes)
	stderr := newTailBuffer(cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if len(req.Stdin) > 0 {
		cmd.Stdin = strings.NewReader(string(req.Stdin))
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	// The group is ours (Setpgid), so anything left in it is a straggler:
	// a child that ignored SIGTERM or one the agent left in the background.
	if cmd.Process != nil {
		_ = killGroup(cmd.Process)
	}

	result := ExecuteResult{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Duration:  duration,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	// Check for timeout first
	if err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		result.TimedOut = true
		log.Debug().
			Str("command", req.Command).
			Dur("timeout", timeout).
			Dur("duration", duration).
			Msg("Command timed out in sandbox")
		return result, ErrExecutionTimeout
	}

	if err != nil && ctx.Err() != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}

	switch {
	case err == nil:
	case errors.Is(err, exec.ErrWaitDelay):
		// The leader exited but a background child held the output pipes
		// open past the grace period. The exit status is still valid.
		result.ExitCode = cmd.ProcessState.ExitCode()
		log.Debug().
			Str("command", req.Command).
			Msg("Command left output open after exit")
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("%w: %s: %w", ErrStartFailed, req.Command, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Bool("truncated", result.Truncated).
		Msg("Command executed in sandbox")

	return result, nil
}

// checkFilesystemAccess checks if a working directory is allowed
func (h *HostSandbox) checkFilesystemAccess(cfg Config, path string) error {
	if path == "" {
		return nil
	}

	cleanPath := filepath.Clean(path)

	// Check denied paths first
	for _, denied := range cfg.FilesystemAccess.DeniedPaths {
		if withinPath(cleanPath, denied) {
			return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
		}
	}

	// If allowed paths is empty, allow all (except denied)
	if len(cfg.FilesystemAccess.AllowedPaths) == 0 {
		return nil
	}

	for _, allowed := range cfg.FilesystemAccess.AllowedPaths {
		if withinPath(cleanPath, allowed) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
}

func withinPath(path, root string) bool {
	root = filepath.Clean(root)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// buildEnvironment builds the child environment from the request only.
// PATH and HOME fall back to minimal defaults when the caller omits them.
func buildEnvironment(env map[string]string) []string {
	vars := make(map[string]string, len(env)+2)
	vars["PATH"] = "/usr/local/bin:/usr/bin:/bin"
	vars["HOME"] = "/tmp"
	for key, value := range env {
		if key == "" || strings.Contains(key, "=") {
			continue
		}
		vars[key] = value
	}

	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, key := range keys {
		result = append(result, key+"="+vars[key])
	}
	return result
}
