package invoker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/harun/biomni/internal/tracing"
	"github.com/harun/biomni/pkg/sandbox"
)

// outputTail bounds the stdout/stderr excerpts attached to failures
const outputTail = 2000

// DefaultForwardEnv are host variables every agent process receives when set
var DefaultForwardEnv = []string{
	"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR",
	"SSL_CERT_FILE", "REQUESTS_CA_BUNDLE",
	"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
}

// Config holds invoker configuration
type Config struct {
	// Model is the agent's model identifier
	Model string
	// DataPath is the agent's working data directory
	DataPath string
	// DefaultTimeout applies to requests without their own timeout
	DefaultTimeout time.Duration
	// AgentTimeout is handed to the agent's own configuration
	AgentTimeout time.Duration
	// Interpreter is the command that reads the program from stdin
	Interpreter []string
	// PythonPath is prepended to the child's PYTHONPATH
	PythonPath string
	// AgentImport is "module:attribute" of the agent class or instance
	AgentImport string
	// AgentMethod is the resolved entry method, empty to try MethodCandidates
	AgentMethod string
	// MaxConcurrent bounds in-flight invocations
	MaxConcurrent int
	// ForwardEnv lists extra variable names copied from Lookup
	ForwardEnv []string
	// Lookup resolves forwarded variables, os.LookupEnv when nil
	Lookup func(string) (string, bool)
}

// DefaultConfig returns a default invoker configuration
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 600 * time.Second,
		AgentTimeout:   600 * time.Second,
		Interpreter:    []string{"python3", "-"},
		AgentImport:    "biomni.agent:A1",
		MaxConcurrent:  1,
	}
}

// Observer receives invocation lifecycle events
type Observer interface {
	InvocationStarted()
	InvocationFinished(state State, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) InvocationStarted()                        {}
func (nopObserver) InvocationFinished(State, time.Duration) {}

// Option configures an Invoker
type Option func(*Invoker)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Invoker) { i.logger = logger.With().Str("component", "invoker").Logger() }
}

// WithObserver sets the lifecycle observer
func WithObserver(o Observer) Option {
	return func(i *Invoker) { i.observer = o }
}

// WithScriptBuilder replaces the generated program
func WithScriptBuilder(b ScriptBuilder) Option {
	return func(i *Invoker) { i.script = b }
}

// Invoker runs one agent query per subprocess
type Invoker struct {
	config   Config
	exec     sandbox.Executor
	sem      *semaphore.Weighted
	logger   zerolog.Logger
	observer Observer
	script   ScriptBuilder
}

// New creates an invoker that launches agent processes through exec
func New(cfg Config, exec sandbox.Executor, opts ...Option) (*Invoker, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}
	if len(cfg.Interpreter) == 0 || cfg.Interpreter[0] == "" {
		return nil, fmt.Errorf("%w: interpreter is required", ErrInvalidConfig)
	}
	if cfg.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("%w: default timeout must be positive", ErrInvalidConfig)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Lookup == nil {
		cfg.Lookup = os.LookupEnv
	}

	i := &Invoker{
		config:   cfg,
		exec:     exec,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		script:   BuildAgentScript,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Config returns the invoker configuration
func (i *Invoker) Config() Config {
	return i.config
}

// ValidateQuery rejects empty and whitespace-only queries
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// Invoke runs req to exactly one terminal state. No process outlives the call.
func (i *Invoker) Invoke(ctx context.Context, req Request) *Outcome {
	start := time.Now()
	c := &call{state: StateIdle}
	out := &Outcome{InvocationID: uuid.NewString()}

	ctx = tracing.WithInvocationID(ctx, out.InvocationID)
	ctx, span := tracing.StartSpan(ctx, "biomni/invoker", "Invoke",
		attribute.String("invocation_id", out.InvocationID),
		attribute.String("model", i.config.Model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, i.logger)

	finish := func(state State) *Outcome {
		if err := c.move(state); err != nil {
			logger.Error().Err(err).Msg("Invocation state machine violated")
			c.state = state
		}
		out.State = c.state
		out.Elapsed = time.Since(start)
		i.observer.InvocationFinished(out.State, out.Elapsed)

		span.SetAttributes(attribute.String("state", string(out.State)))
		tracing.Fail(span, out.Err())

		event := logger.Info()
		if out.State != StateCompleted {
			event = logger.Warn()
		}
		if out.Failure != nil {
			event = event.Str("failure_kind", string(out.Failure.Kind))
		}
		event.Str("state", string(out.State)).Dur("elapsed", out.Elapsed).Msg("Invocation finished")
		return out
	}

	i.observer.InvocationStarted()

	if err := ValidateQuery(req.Query); err != nil {
		out.Failure = &Failure{Kind: KindValidation, Message: "Please provide a research query"}
		return finish(StateFailed)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = i.config.DefaultTimeout
	}
	out.Timeout = timeout

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Waiting for a slot counts against the same bound.
	if err := i.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return finish(StateTimedOut)
		}
		out.Failure = &Failure{Kind: KindCanceled, Message: err.Error()}
		return finish(StateFailed)
	}
	defer i.sem.Release(1)

	nonce, err := gonanoid.New()
	if err != nil {
		out.Failure = &Failure{Kind: KindInternal, Message: fmt.Sprintf("failed to generate nonce: %v", err)}
		return finish(StateFailed)
	}

	program, err := i.script(ScriptParams{
		Nonce:          nonce,
		Query:          req.Query,
		Model:          i.config.Model,
		DataPath:       i.config.DataPath,
		TimeoutSeconds: int(i.config.AgentTimeout.Seconds()),
		AgentImport:    i.config.AgentImport,
		AgentMethod:    i.config.AgentMethod,
	})
	if err != nil {
		out.Failure = &Failure{Kind: KindInternal, Message: err.Error()}
		return finish(StateFailed)
	}

	remaining := time.Until(start.Add(timeout))
	if remaining <= 0 {
		return finish(StateTimedOut)
	}

	_ = c.move(StateDispatched)
	logger.Info().
		Str("model", i.config.Model).
		Dur("timeout", timeout).
		Msg("Dispatching agent process")

	res, err := i.exec.Execute(ctx, sandbox.ExecuteRequest{
		Command: i.config.Interpreter[0],
		Args:    i.config.Interpreter[1:],
		Env:     i.environment(),
		Stdin:   []byte(program),
		Timeout: remaining,
	})

	switch {
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return finish(StateTimedOut)
	case errors.Is(err, sandbox.ErrCanceled):
		out.Failure = &Failure{Kind: KindCanceled, Message: err.Error()}
		return finish(StateFailed)
	case errors.Is(err, sandbox.ErrStartFailed):
		out.Failure = &Failure{Kind: KindSpawn, Message: err.Error()}
		return finish(StateFailed)
	case err != nil:
		out.Failure = &Failure{Kind: KindInternal, Message: err.Error()}
		return finish(StateFailed)
	}

	if res.Truncated {
		logger.Warn().Msg("Agent output exceeded capture limit, kept tail")
	}

	return finish(i.interpret(out, res, nonce))
}

// interpret maps a finished process onto a terminal state
func (i *Invoker) interpret(out *Outcome, res sandbox.ExecuteResult, nonce string) State {
	stdout := string(res.Stdout)
	blocks := scanBlocks(stdout)

	if res.ExitCode == 0 {
		if b, ok := findBlock(blocks, resultBlock, nonce); ok {
			payload, meta, failure := decodeResult(b.body)
			if failure == nil {
				out.Payload = payload
				out.Metadata = meta
				if out.Metadata.Model == "" {
					out.Metadata.Model = i.config.Model
				}
				return StateCompleted
			}
			out.Failure = failure
			return StateFailed
		}
	}

	if b, ok := findBlock(blocks, errorBlock, nonce); ok {
		out.Failure = decodeError(b.body)
		out.Failure.ExitCode = res.ExitCode
		return StateFailed
	}

	failure := &Failure{
		ExitCode: res.ExitCode,
		Stdout:   tail(stdout, outputTail),
		Stderr:   tail(string(res.Stderr), outputTail),
	}
	if res.ExitCode != 0 {
		failure.Kind = KindExit
		failure.Message = fmt.Sprintf("agent process exited with code %d", res.ExitCode)
	} else {
		failure.Kind = KindProtocol
		failure.Message = "agent process exited without a result block"
	}
	out.Failure = failure
	return StateFailed
}

// environment builds the whitelisted child environment. The parent's
// environment is only read.
func (i *Invoker) environment() map[string]string {
	env := make(map[string]string)

	names := append(append([]string{}, DefaultForwardEnv...), i.config.ForwardEnv...)
	for _, name := range names {
		if value, ok := i.config.Lookup(name); ok {
			env[name] = value
		}
	}

	env["BIOMNI_LLM"] = i.config.Model
	env["BIOMNI_DATA_PATH"] = i.config.DataPath
	env["BIOMNI_TIMEOUT_SECONDS"] = strconv.Itoa(int(i.config.AgentTimeout.Seconds()))
	env["PYTHONUNBUFFERED"] = "1"
	env["PYTHONIOENCODING"] = "utf-8"

	if i.config.PythonPath != "" {
		pythonPath := i.config.PythonPath
		if existing, ok := i.config.Lookup("PYTHONPATH"); ok && existing != "" {
			pythonPath += string(os.PathListSeparator) + existing
		}
		env["PYTHONPATH"] = pythonPath
	} else if existing, ok := i.config.Lookup("PYTHONPATH"); ok {
		env["PYTHONPATH"] = existing
	}

	return env
}
