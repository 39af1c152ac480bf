package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/biomni/internal/config"
	"github.com/harun/biomni/internal/logger"
	"github.com/harun/biomni/internal/metrics"
	"github.com/harun/biomni/internal/tracing"
	"github.com/harun/biomni/pkg/credentials"
	"github.com/harun/biomni/pkg/invoker"
	"github.com/harun/biomni/pkg/plugin"
	"github.com/harun/biomni/pkg/sandbox"
	"github.com/harun/biomni/pkg/tool"
)

// app is everything a command needs, built from one loaded config
type app struct {
	loader   *config.Loader
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	provider *plugin.BiomniProvider
}

// loadConfig loads the config named by the global flags
func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(cfgFile, envFiles...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

// applyFlags lays command line overrides over a loaded config. The
// log-level flag wins over the file when given.
func applyFlags(cfg *config.Config) {
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
}

// newApp wires logger, executor and provider. Logs go to logOut, never to
// stdout in serve mode.
func newApp(logOut io.Writer) (*app, error) {
	loader, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Output:    logOut,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := tracing.InitOpenTelemetry("biomni", version); err != nil {
		zl := log.GetZerolog()
		zl.Warn().Err(err).Msg("Tracing disabled")
	}

	exec, err := newExecutor(cfg)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	a := &app{
		loader:  loader,
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewMetrics(),
	}

	a.provider, err = plugin.NewBiomniProvider(a.components(cfg, exec),
		plugin.WithProviderLogger(log.GetZerolog()),
		plugin.WithValidationObserver(a.metrics),
	)
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		zl := a.log.GetZerolog()
		zl.Warn().Err(err).Msg("Failed to flush traces")
	}
	return a.log.Close()
}

func newExecutor(cfg *config.Config) (*sandbox.HostSandbox, error) {
	sc := sandbox.DefaultConfig()
	sc.Timeout = cfg.Timeout()
	sc.KillGrace = cfg.KillGrace()
	sc.MaxOutputBytes = cfg.MaxOutputBytes
	return sandbox.NewHostSandbox(sc)
}

// components builds the validator and runner factory for cfg
func (a *app) components(cfg *config.Config, exec sandbox.Executor) plugin.Components {
	zl := a.log.GetZerolog()

	opts := []credentials.Option{credentials.WithLogger(zl)}
	if cfg.UseSubprocess {
		opts = append(opts, credentials.WithImportProbe(&credentials.ImportProbe{
			Executor:    exec,
			Interpreter: cfg.Interpreter(),
			PythonPath:  cfg.PythonPath,
			AgentImport: cfg.AgentImport,
			AgentMethod: cfg.AgentMethod,
		}))
	}

	validator := credentials.NewValidator(credentials.Config{
		Model:            cfg.Model,
		DataPath:         cfg.DataPath,
		ProbeCredentials: cfg.ProbeCredentials,
	}, opts...)

	return plugin.Components{
		Validator:      validator,
		Runner:         a.runnerFactory(cfg, exec, zl),
		DefaultTimeout: cfg.Timeout(),
	}
}

func (a *app) runnerFactory(cfg *config.Config, exec sandbox.Executor, zl zerolog.Logger) plugin.RunnerFactory {
	return func(report *credentials.Report, lookup credentials.LookupFunc) (tool.Runner, error) {
		method := cfg.AgentMethod
		if report.Agent != nil && report.Agent.Method != "" {
			method = report.Agent.Method
		}

		inv, err := invoker.New(invoker.Config{
			Model:          report.Model,
			DataPath:       cfg.DataPath,
			DefaultTimeout: cfg.Timeout(),
			AgentTimeout:   cfg.Timeout(),
			Interpreter:    cfg.Interpreter(),
			PythonPath:     cfg.PythonPath,
			AgentImport:    cfg.AgentImport,
			AgentMethod:    method,
			MaxConcurrent:  cfg.MaxConcurrent,
			ForwardEnv:     credentials.SecretNames(),
			Lookup:         lookup,
		}, exec, invoker.WithLogger(zl), invoker.WithObserver(a.metrics))
		if err != nil {
			return nil, err
		}
		return inv, nil
	}
}

// reload swaps in components for a changed config file
func (a *app) reload(cfg *config.Config) error {
	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	return a.provider.Reconfigure(a.components(cfg, exec))
}
