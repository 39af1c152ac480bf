package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. BIOMNI_LLM
const EnvPrefix = "BIOMNI"

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFiles   []string
}

// NewLoader creates a new config loader. configPath may be empty; envFiles
// are dotenv files loaded without overriding variables already set.
func NewLoader(configPath string, envFiles ...string) *Loader {
	return &Loader{
		configPath: configPath,
		envFiles:   envFiles,
	}
}

// Load merges defaults, the config file and BIOMNI_ environment variables,
// in increasing precedence
func (l *Loader) Load() (*Config, error) {
	for _, f := range l.envFiles {
		if err := gotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			v.SetConfigFile(l.configPath)
			if ext := strings.TrimPrefix(filepath.Ext(l.configPath), "."); ext == "" {
				v.SetConfigType("json")
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataPath != "" {
		if abs, err := filepath.Abs(cfg.DataPath); err == nil {
			cfg.DataPath = abs
		}
	}

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	return l.configPath
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string, envFiles ...string) (*Config, error) {
	return NewLoader(configPath, envFiles...).Load()
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("llm", d.Model)
	v.SetDefault("data_path", d.DataPath)
	v.SetDefault("timeout_seconds", d.TimeoutSeconds)
	v.SetDefault("use_subprocess", d.UseSubprocess)
	v.SetDefault("probe_credentials", d.ProbeCredentials)
	v.SetDefault("python", d.Python)
	v.SetDefault("python_path", d.PythonPath)
	v.SetDefault("agent_import", d.AgentImport)
	v.SetDefault("agent_method", d.AgentMethod)
	v.SetDefault("max_concurrent", d.MaxConcurrent)
	v.SetDefault("kill_grace_ms", d.KillGraceMs)
	v.SetDefault("max_output_bytes", d.MaxOutputBytes)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}
