package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/biomni/internal/tracing"
	"github.com/harun/biomni/pkg/credentials"
	"github.com/harun/biomni/pkg/invoker"
	"github.com/harun/biomni/pkg/tool"
)

// ErrUnknownTool is returned for tool names this provider does not serve
var ErrUnknownTool = errors.New("unknown tool")

// Validator checks the agent environment
type Validator interface {
	Validate(ctx context.Context, hostCredentials map[string]string) (*credentials.Report, error)
	Lookup(hostCredentials map[string]string) credentials.LookupFunc
}

// RunnerFactory builds the runner once validation succeeded. The report
// carries the resolved entry method; lookup includes host credentials.
type RunnerFactory func(report *credentials.Report, lookup credentials.LookupFunc) (tool.Runner, error)

// ValidationObserver receives validation outcomes
type ValidationObserver interface {
	ValidationFinished(err error)
}

// Components is the swappable part of a provider
type Components struct {
	Validator      Validator
	Runner         RunnerFactory
	DefaultTimeout time.Duration
}

// ProviderOption configures a BiomniProvider
type ProviderOption func(*BiomniProvider)

// WithProviderLogger sets the logger
func WithProviderLogger(logger zerolog.Logger) ProviderOption {
	return func(p *BiomniProvider) { p.logger = logger.With().Str("component", "provider").Logger() }
}

// WithValidationObserver reports validation outcomes to o
func WithValidationObserver(o ValidationObserver) ProviderOption {
	return func(p *BiomniProvider) { p.observer = o }
}

// BiomniProvider serves the biomni_agent tool. It is not ready until a
// validation succeeds; the first invocation validates when the host has not.
type BiomniProvider struct {
	mu         sync.RWMutex
	components Components
	tool       *tool.Tool
	runner     tool.Runner
	report     *credentials.Report
	hostCreds  map[string]string
	// generation is bumped by every install; a validation that started
	// under an older generation must not install its runner
	generation uint64
	observer   ValidationObserver
	logger     zerolog.Logger

	inflight sync.WaitGroup
}

// NewBiomniProvider creates a provider
func NewBiomniProvider(c Components, opts ...ProviderOption) (*BiomniProvider, error) {
	p := &BiomniProvider{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.install(c); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *BiomniProvider) install(c Components) error {
	if c.Validator == nil || c.Runner == nil {
		return errors.New("provider requires a validator and a runner factory")
	}
	t, err := tool.New(dispatcher{p}, c.DefaultTimeout,
		tool.WithReadiness(p.ensureReady),
		tool.WithLogger(p.logger))
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.components = c
	p.tool = t
	p.runner = nil
	p.report = nil
	p.generation++
	p.mu.Unlock()
	return nil
}

// Reconfigure swaps the validator and runner. Readiness is reset so the
// next call validates again; in-flight invocations finish on the old runner.
func (p *BiomniProvider) Reconfigure(c Components) error {
	if err := p.install(c); err != nil {
		return err
	}
	p.logger.Info().Msg("Provider reconfigured")
	return nil
}

// ValidateCredentials implements Provider
func (p *BiomniProvider) ValidateCredentials(ctx context.Context, creds map[string]string) error {
	p.mu.Lock()
	p.hostCreds = creds
	p.mu.Unlock()

	_, err := p.validate(ctx)
	return err
}

// Tools implements Provider
func (p *BiomniProvider) Tools(context.Context) ([]tool.Definition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return []tool.Definition{p.tool.Definition()}, nil
}

// InvokeTool implements Provider
func (p *BiomniProvider) InvokeTool(ctx context.Context, name string, params map[string]any) ([]tool.Message, error) {
	p.mu.RLock()
	t := p.tool
	p.mu.RUnlock()

	if name != t.Definition().Name {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	p.inflight.Add(1)
	defer p.inflight.Done()

	ctx = tracing.WithTool(ctx, name)
	ctx, span := tracing.StartSpan(ctx, "biomni/plugin", "InvokeTool", attribute.String("tool", name))
	defer span.End()

	msgs, out := t.Collect(ctx, params)
	if out != nil {
		tracing.Fail(span, out.Err())
	}
	return msgs, nil
}

// Drain waits for in-flight InvokeTool calls to return, or for ctx
func (p *BiomniProvider) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report returns the last successful validation, nil when not ready
func (p *BiomniProvider) Report() *credentials.Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report
}

func (p *BiomniProvider) ensureReady(ctx context.Context) error {
	p.mu.RLock()
	ready := p.runner != nil
	p.mu.RUnlock()
	if ready {
		return nil
	}
	_, err := p.validate(ctx)
	return err
}

func (p *BiomniProvider) validate(ctx context.Context) (*credentials.Report, error) {
	p.mu.RLock()
	c := p.components
	creds := p.hostCreds
	gen := p.generation
	p.mu.RUnlock()

	ctx, span := tracing.StartSpan(ctx, "biomni/plugin", "Validate")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	report, err := c.Validator.Validate(ctx, creds)
	if err == nil {
		var runner tool.Runner
		runner, err = c.Runner(report, c.Validator.Lookup(creds))
		if err == nil {
			p.mu.Lock()
			stale := p.generation != gen
			if !stale {
				p.runner, p.report = runner, report
			}
			p.mu.Unlock()

			if stale {
				logger.Info().Msg("Provider reconfigured during validation, validating again")
				return p.validate(ctx)
			}
		}
	}

	if p.observer != nil {
		p.observer.ValidationFinished(err)
	}
	if err != nil {
		tracing.Fail(span, err)
		logger.Error().Err(err).Msg("Biomni agent validation failed")
		return nil, err
	}
	logger.Info().Str("model", report.Model).Msg("Biomni agent validation successful")
	return report, nil
}

// dispatcher forwards to the runner installed by the last validation
type dispatcher struct {
	p *BiomniProvider
}

func (d dispatcher) Invoke(ctx context.Context, req invoker.Request) *invoker.Outcome {
	d.p.mu.RLock()
	runner := d.p.runner
	d.p.mu.RUnlock()

	if runner == nil {
		return &invoker.Outcome{
			State:   invoker.StateFailed,
			Failure: &invoker.Failure{Kind: invoker.KindInternal, Message: "provider is not ready"},
		}
	}
	return runner.Invoke(ctx, req)
}
