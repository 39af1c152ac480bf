package config

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Config represents the biomni plugin configuration
type Config struct {
	// Model is the agent's LLM identifier
	Model string `json:"llm" mapstructure:"llm"`

	// DataPath is the agent's data directory
	DataPath string `json:"data_path" mapstructure:"data_path"`

	// TimeoutSeconds is the default per-query bound
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	// UseSubprocess runs the import probe during validation
	UseSubprocess bool `json:"use_subprocess" mapstructure:"use_subprocess"`

	// ProbeCredentials checks the model key against the provider API
	ProbeCredentials bool `json:"probe_credentials" mapstructure:"probe_credentials"`

	// Python is the interpreter command, arguments allowed
	Python string `json:"python" mapstructure:"python"`

	// PythonPath is prepended to the agent's PYTHONPATH
	PythonPath string `json:"python_path" mapstructure:"python_path"`

	// AgentImport is "module:attribute" of the agent
	AgentImport string `json:"agent_import" mapstructure:"agent_import"`

	// AgentMethod is the entry method, empty to detect
	AgentMethod string `json:"agent_method" mapstructure:"agent_method"`

	// MaxConcurrent bounds in-flight agent processes
	MaxConcurrent int `json:"max_concurrent" mapstructure:"max_concurrent"`

	// KillGraceMs is the delay between SIGTERM and SIGKILL
	KillGraceMs int `json:"kill_grace_ms" mapstructure:"kill_grace_ms"`

	// MaxOutputBytes bounds captured stdout and stderr each
	MaxOutputBytes int `json:"max_output_bytes" mapstructure:"max_output_bytes"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	// Addr is host:port for /metrics, empty disables the endpoint
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Model:          "claude-sonnet-4-20250514",
		DataPath:       "./data",
		TimeoutSeconds: 600,
		UseSubprocess:  true,
		Python:         "python3",
		AgentImport:    "biomni.agent:A1",
		MaxConcurrent:  1,
		KillGraceMs:    2000,
		MaxOutputBytes: 8 << 20,
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// Timeout returns the default per-query bound
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// KillGrace returns the SIGTERM to SIGKILL delay
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.KillGraceMs) * time.Millisecond
}

// Interpreter returns the command that reads a program from stdin
func (c *Config) Interpreter() []string {
	return append(strings.Fields(c.Python), "-")
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
