package tool

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/biomni/pkg/formatter"
	"github.com/harun/biomni/pkg/invoker"
)

// MessageKind classifies an emitted message
type MessageKind string

const (
	MessageValidation    MessageKind = "validation"
	MessageNotConfigured MessageKind = "not_configured"
	MessageStarted       MessageKind = "started"
	MessageWarning       MessageKind = "warning"
	MessageResult        MessageKind = "result"
	MessageTimeout       MessageKind = "timeout"
	MessageError         MessageKind = "error"
)

// Message is one text message streamed back to the host
type Message struct {
	Kind MessageKind `json:"kind"`
	Text string      `json:"text"`
}

// Emitter receives messages in order
type Emitter func(Message)

// Runner executes one agent request
type Runner interface {
	Invoke(ctx context.Context, req invoker.Request) *invoker.Outcome
}

// ReadyFunc reports whether the agent environment is usable
type ReadyFunc func(ctx context.Context) error

// Option configures a Tool
type Option func(*Tool)

// WithReadiness gates dispatch on fn
func WithReadiness(fn ReadyFunc) Option {
	return func(t *Tool) { t.ready = fn }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tool) { t.logger = logger.With().Str("tool", Name).Logger() }
}

// Tool is the biomni_agent tool
type Tool struct {
	definition     Definition
	schema         *gojsonschema.Schema
	runner         Runner
	defaultTimeout time.Duration
	ready          ReadyFunc
	logger         zerolog.Logger
}

// New creates the tool around runner
func New(runner Runner, defaultTimeout time.Duration, opts ...Option) (*Tool, error) {
	if runner == nil {
		return nil, errors.New("tool runner is required")
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 600 * time.Second
	}

	def := BiomniDefinition()
	schema, err := def.Schema()
	if err != nil {
		return nil, err
	}

	t := &Tool{
		definition:     def,
		schema:         schema,
		runner:         runner,
		defaultTimeout: defaultTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Definition returns the tool declaration
func (t *Tool) Definition() Definition {
	return t.definition
}

// Invoke runs one query and emits its messages. The outcome is nil when no
// agent process was dispatched.
func (t *Tool) Invoke(ctx context.Context, raw map[string]any, emit Emitter) *invoker.Outcome {
	params, err := ParseParams(t.schema, raw, t.defaultTimeout)
	switch {
	case errors.Is(err, invoker.ErrEmptyQuery):
		emit(Message{Kind: MessageValidation, Text: formatter.ValidationMessage()})
		return nil
	case err != nil:
		emit(Message{Kind: MessageError, Text: formatter.ErrorMessage("", &invoker.Failure{
			Kind:    invoker.KindValidation,
			Message: err.Error(),
		})})
		return nil
	}

	if t.ready != nil {
		if err := t.ready(ctx); err != nil {
			t.logger.Warn().Err(err).Msg("Biomni agent is not configured")
			emit(Message{Kind: MessageNotConfigured, Text: formatter.NotConfiguredMessage(err)})
			return nil
		}
	}

	emit(Message{Kind: MessageStarted, Text: formatter.StartedMessage(params.Query, params.MaxExecutionTime, params.IncludeCitations)})

	out := t.runner.Invoke(ctx, invoker.Request{
		Query:            params.Query,
		Timeout:          params.MaxExecutionTime,
		IncludeCitations: params.IncludeCitations,
	})

	switch out.State {
	case invoker.StateCompleted:
		if out.Elapsed > params.MaxExecutionTime {
			emit(Message{Kind: MessageWarning, Text: formatter.SlowWarningMessage(out.Elapsed, params.MaxExecutionTime)})
		}
		emit(Message{Kind: MessageResult, Text: formatter.CompletedMessage(params.Query, out, params.IncludeCitations)})
		t.logger.Info().Str("invocation_id", out.InvocationID).Msg("Biomni agent completed successfully")
	case invoker.StateTimedOut:
		emit(Message{Kind: MessageTimeout, Text: formatter.TimeoutMessage(out.Timeout)})
	default:
		if out.Failure != nil {
			t.logger.Error().
				Str("invocation_id", out.InvocationID).
				Str("failure_kind", string(out.Failure.Kind)).
				Msg(out.Failure.Message)
		}
		emit(Message{Kind: MessageError, Text: formatter.ErrorMessage(params.Query, out.Failure)})
	}

	return out
}

// Collect runs Invoke and returns every emitted message
func (t *Tool) Collect(ctx context.Context, raw map[string]any) ([]Message, *invoker.Outcome) {
	var msgs []Message
	out := t.Invoke(ctx, raw, func(m Message) { msgs = append(msgs, m) })
	return msgs, out
}

