package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateModel validates a model identifier
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("llm cannot be empty")
	}
	return nil
}

// ValidateAgentImport validates a "module:attribute" import path
func (v *Validator) ValidateAgentImport(path string) error {
	module, attr, found := strings.Cut(path, ":")
	if module == "" {
		return fmt.Errorf("agent_import %q has no module path", path)
	}
	if found && attr == "" {
		return fmt.Errorf("agent_import %q has an empty attribute", path)
	}
	if strings.ContainsAny(module, " /\\") {
		return fmt.Errorf("agent_import %q is not a dotted module path", path)
	}
	return nil
}

// ValidateTimeout validates the per-query bound in seconds
func (v *Validator) ValidateTimeout(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", seconds)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	if level == "" {
		return nil
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil {
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

// ValidateMetricsAddr validates a host:port listen address
func (v *Validator) ValidateMetricsAddr(addr string) error {
	if addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid metrics addr %q: %w", addr, err)
	}
	return nil
}

// ValidateConfig validates the entire configuration
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(v.ValidateModel(cfg.Model))
	add(v.ValidateAgentImport(cfg.AgentImport))
	add(v.ValidateTimeout(cfg.TimeoutSeconds))
	add(v.ValidateLogLevel(cfg.Logging.Level))
	add(v.ValidateMetricsAddr(cfg.Metrics.Addr))

	if strings.TrimSpace(cfg.Python) == "" {
		errs = append(errs, fmt.Errorf("python cannot be empty"))
	}
	if cfg.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent must be at least 1, got %d", cfg.MaxConcurrent))
	}
	if cfg.KillGraceMs < 0 {
		errs = append(errs, fmt.Errorf("kill_grace_ms cannot be negative"))
	}
	if cfg.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_output_bytes must be positive"))
	}

	return errs
}
