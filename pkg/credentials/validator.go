package credentials

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LookupFunc resolves a variable by name
type LookupFunc func(string) (string, bool)

// Overlay returns a lookup that consults values before next. Empty values
// do not shadow next.
func Overlay(values map[string]string, next LookupFunc) LookupFunc {
	if next == nil {
		next = os.LookupEnv
	}
	return func(name string) (string, bool) {
		if v, ok := values[name]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		return next(name)
	}
}

// Config holds validator configuration
type Config struct {
	Model            string
	DataPath         string
	ProbeCredentials bool
	ProbeTimeout     time.Duration
}

// Report is the outcome of a successful validation
type Report struct {
	Model    string
	Provider Provider
	// KnownProvider is false when the model matched no family
	KnownProvider bool
	// Agent is nil when the import probe is disabled
	Agent     *ProbeResult
	CheckedAt time.Time
}

// Option configures a Validator
type Option func(*Validator)

// WithImportProbe enables the subprocess import check
func WithImportProbe(p *ImportProbe) Option {
	return func(v *Validator) { v.probe = p }
}

// WithLookup sets the base variable lookup, os.LookupEnv by default
func WithLookup(fn LookupFunc) Option {
	return func(v *Validator) { v.lookup = fn }
}

// WithProbers replaces the live key probers
func WithProbers(p map[string]KeyProber) Option {
	return func(v *Validator) { v.probers = p }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Validator) { v.logger = logger.With().Str("component", "validator").Logger() }
}

// Validator checks that the agent can run before any query is accepted
type Validator struct {
	config  Config
	probe   *ImportProbe
	lookup  LookupFunc
	probers map[string]KeyProber
	logger  zerolog.Logger
}

// NewValidator creates a validator
func NewValidator(cfg Config, opts ...Option) *Validator {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	v := &Validator{
		config:  cfg,
		lookup:  os.LookupEnv,
		probers: DefaultProbers(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks the model secret, the data path and, when enabled, that
// the agent imports. Host supplied credentials take precedence over the
// process environment.
func (v *Validator) Validate(ctx context.Context, hostCredentials map[string]string) (*Report, error) {
	lookup := Overlay(hostCredentials, v.lookup)

	model := strings.TrimSpace(v.config.Model)
	if model == "" {
		return nil, &ConfigurationError{Variable: "BIOMNI_LLM", Reason: "is not set"}
	}

	report := &Report{Model: model}
	provider, known := RequiredSecret(model)
	report.Provider, report.KnownProvider = provider, known

	var key string
	if !known {
		v.logger.Warn().Str("model", model).Msg("Unrecognized model family, skipping credential check")
	} else if provider.Secret != "" {
		value, ok := lookup(provider.Secret)
		if !ok || strings.TrimSpace(value) == "" {
			return nil, &ConfigurationError{
				Variable: provider.Secret,
				Reason:   "is not set (required for model " + model + ")",
			}
		}
		key = value
	}

	if err := EnsureDataPath(v.config.DataPath); err != nil {
		return nil, err
	}

	if v.probe != nil {
		probe := *v.probe
		probe.Lookup = lookup
		result, err := probe.Run(ctx)
		if err != nil {
			return nil, err
		}
		report.Agent = result
		v.logger.Debug().
			Str("method", result.Method).
			Str("version", result.Version).
			Msg("Agent import probe succeeded")
	}

	if v.config.ProbeCredentials && key != "" {
		if prober, ok := v.probers[provider.Name]; ok {
			probeCtx, cancel := context.WithTimeout(ctx, v.config.ProbeTimeout)
			err := prober.Probe(probeCtx, key)
			cancel()
			if err != nil {
				return nil, &ConfigurationError{Variable: provider.Secret, Reason: "was rejected: " + err.Error()}
			}
		}
	}

	report.CheckedAt = time.Now()
	v.logger.Info().
		Str("model", model).
		Str("provider", provider.Name).
		Msg("Environment validated")
	return report, nil
}

// Lookup returns the lookup used for a validation with hostCredentials
func (v *Validator) Lookup(hostCredentials map[string]string) LookupFunc {
	return Overlay(hostCredentials, v.lookup)
}
