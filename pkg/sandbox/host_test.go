package sandbox

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHostSandbox(t *testing.T) {
	cfg := DefaultConfig()
	sandbox, err := NewHostSandbox(cfg)

	require.NoError(t, err)
	assert.NotNil(t, sandbox)
	assert.Equal(t, cfg, sandbox.GetConfig())
}

func TestNewHostSandbox_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = -1

	sandbox, err := NewHostSandbox(cfg)

	assert.ErrorIs(t, err, ErrInvalidTimeout)
	assert.Nil(t, sandbox)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -time.Second }, want: ErrInvalidTimeout},
		{name: "negative grace", mutate: func(c *Config) { c.KillGrace = -time.Second }, want: ErrInvalidKillGrace},
		{name: "negative output limit", mutate: func(c *Config) { c.MaxOutputBytes = -1 }, want: ErrInvalidOutputLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHostSandbox_Execute_SimpleCommand(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "echo",
		Args:    []string{"hello", "world"},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, string(result.Stdout), "hello world")
	assert.Empty(t, result.Stderr)
	assert.False(t, result.TimedOut)
}

func TestHostSandbox_Execute_EmptyCommand(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	_, err = sandbox.Execute(context.Background(), ExecuteRequest{})
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestHostSandbox_Execute_NonZeroExit(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "echo oops >&2; exit 42"},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result.ExitCode)
	assert.Contains(t, string(result.Stderr), "oops")
}

func TestHostSandbox_Execute_StartFailure(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	_, err = sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "/nonexistent/interpreter",
		Timeout: 5 * time.Second,
	})

	assert.ErrorIs(t, err, ErrStartFailed)
}

func TestHostSandbox_Execute_Timeout(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	start := time.Now()
	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrExecutionTimeout)
	assert.Equal(t, -1, result.ExitCode)
	assert.True(t, result.TimedOut)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestHostSandbox_Execute_TimeoutKillsGroup(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	pidFile := t.TempDir() + "/child.pid"
	_, err = sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "sleep 30 & echo $! > " + pidFile + "; wait"},
		Timeout: 300 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrExecutionTimeout)

	// The background sleep must be gone (or a zombie) once Execute returns.
	assert.True(t, processGone(t, sandbox, pidFile))
}

// processGone reports whether the pid in pidFile has exited (or is a zombie)
func processGone(t *testing.T, sandbox *HostSandbox, pidFile string) bool {
	t.Helper()

	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}

	script := `pid=$(cat ` + pidFile + `); i=0
while [ $i -lt 20 ]; do
  if [ ! -e /proc/$pid ] || grep -q ') Z' /proc/$pid/stat; then echo gone; exit 0; fi
  i=$((i+1)); sleep 0.1
done
echo alive`
	check, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", script},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return strings.TrimSpace(string(check.Stdout)) == "gone"
}

func TestHostSandbox_Execute_BackgroundChildHoldsOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KillGrace = 300 * time.Millisecond
	sandbox, err := NewHostSandbox(cfg)
	require.NoError(t, err)

	pidFile := t.TempDir() + "/child.pid"
	start := time.Now()
	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "sleep 30 & echo $! > " + pidFile + "; echo RESULT; exit 0"},
		Timeout: 10 * time.Second,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.TimedOut)
	assert.Contains(t, string(result.Stdout), "RESULT")
	assert.Less(t, elapsed, 5*time.Second)

	assert.True(t, processGone(t, sandbox, pidFile), "background child outlived Execute")
}

func TestHostSandbox_Execute_BackgroundChildNonZeroExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KillGrace = 300 * time.Millisecond
	sandbox, err := NewHostSandbox(cfg)
	require.NoError(t, err)

	pidFile := t.TempDir() + "/child.pid"
	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "sleep 30 & echo $! > " + pidFile + "; exit 3"},
		Timeout: 10 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.True(t, processGone(t, sandbox, pidFile))
}

func TestHostSandbox_Execute_TimeoutIgnoringTerm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KillGrace = 300 * time.Millisecond
	sandbox, err := NewHostSandbox(cfg)
	require.NoError(t, err)

	timeout := 300 * time.Millisecond
	start := time.Now()
	_, err = sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "trap '' TERM; while :; do sleep 0.05; done"},
		Timeout: timeout,
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrExecutionTimeout)
	// SIGKILL follows SIGTERM after KillGrace
	assert.Less(t, elapsed, timeout+cfg.KillGrace+time.Second)
}

func TestHostSandbox_Execute_Canceled(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	result, err := sandbox.Execute(ctx, ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 10 * time.Second,
	})

	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, -1, result.ExitCode)
	assert.False(t, result.TimedOut)
}

func TestHostSandbox_Execute_WithStdin(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "cat",
		Stdin:   []byte("test input"),
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "test input", string(result.Stdout))
}

func TestHostSandbox_Execute_EnvIsNotInherited(t *testing.T) {
	t.Setenv("SANDBOX_PARENT_SECRET", "leaked")

	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "echo \"[$TEST_VAR][$SANDBOX_PARENT_SECRET]\""},
		Env: map[string]string{
			"TEST_VAR": "test_value",
		},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, "[test_value][]", strings.TrimSpace(string(result.Stdout)))
}

func TestHostSandbox_Execute_TruncatesToTail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOutputBytes = 16
	sandbox, err := NewHostSandbox(cfg)
	require.NoError(t, err)

	result, err := sandbox.Execute(context.Background(), ExecuteRequest{
		Command: "sh",
		Args:    []string{"-c", "printf 'aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaTAIL'"},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Stdout, 16)
	assert.True(t, strings.HasSuffix(string(result.Stdout), "TAIL"))
}

func TestHostSandbox_CheckFilesystemAccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilesystemAccess.AllowedPaths = []string{"/tmp", "/home"}
	cfg.FilesystemAccess.DeniedPaths = []string{"/etc"}

	sandbox, err := NewHostSandbox(cfg)
	require.NoError(t, err)

	assert.NoError(t, sandbox.checkFilesystemAccess(cfg, "/tmp/test"))
	assert.NoError(t, sandbox.checkFilesystemAccess(cfg, "/home/user"))
	assert.ErrorIs(t, sandbox.checkFilesystemAccess(cfg, "/etc/passwd"), ErrFilesystemAccessDenied)
	assert.ErrorIs(t, sandbox.checkFilesystemAccess(cfg, "/var/lib"), ErrFilesystemAccessDenied)
	assert.ErrorIs(t, sandbox.checkFilesystemAccess(cfg, "/tmpfoo"), ErrFilesystemAccessDenied)
}

func TestHostSandbox_SetConfig(t *testing.T) {
	sandbox, err := NewHostSandbox(DefaultConfig())
	require.NoError(t, err)

	newCfg := DefaultConfig()
	newCfg.Timeout = time.Minute
	require.NoError(t, sandbox.SetConfig(newCfg))
	assert.Equal(t, time.Minute, sandbox.GetConfig().Timeout)

	invalid := DefaultConfig()
	invalid.KillGrace = -1
	err = sandbox.SetConfig(invalid)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestBuildEnvironment(t *testing.T) {
	env := buildEnvironment(map[string]string{
		"B":       "2",
		"A":       "1",
		"BAD=KEY": "x",
		"HOME":    "/data",
	})

	assert.Equal(t, []string{"A=1", "B=2", "HOME=/data", "PATH=/usr/local/bin:/usr/bin:/bin"}, env)
}
