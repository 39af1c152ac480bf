package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with the writers it owns
type Logger struct {
	logger   zerolog.Logger
	writer   io.Writer
	file     *RotatingWriter
	redactor *Redactor
	level    zerolog.Level
}

// Config holds logger configuration
type Config struct {
	Level   string    // debug, info, warn, error
	File    string    // log file path, rotated
	Console bool      // enable console output
	Output  io.Writer // console destination, os.Stdout when nil
	Pretty  bool      // pretty format for console

	// Redaction masks provider keys and Secrets in every line
	Redaction bool
	Secrets   []string

	MaxSize  int // max size in MB before rotation
	MaxAge   int // max age in days
	Compress bool
}

// New creates a new logger and installs it as the global zerolog logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		var console io.Writer = out
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{
				Out:        out,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, console)
	}

	var file *RotatingWriter
	if cfg.File != "" {
		file, err = NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		for _, s := range cfg.Secrets {
			redactor.AddSecret(s)
		}
		writer = redactor.Wrap(writer)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		writer:   writer,
		file:     file,
		redactor: redactor,
		level:    level,
	}, nil
}

// Close closes the logger and any open files
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// With creates a child logger with additional context
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// HCLog returns an hclog logger writing JSON lines to the same
// destinations, for go-plugin
func (l *Logger) HCLog(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclogLevel(l.level),
		Output:     l.writer,
		JSONFormat: true,
	})
}

func hclogLevel(level zerolog.Level) hclog.Level {
	switch level {
	case zerolog.TraceLevel:
		return hclog.Trace
	case zerolog.DebugLevel:
		return hclog.Debug
	case zerolog.WarnLevel:
		return hclog.Warn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return hclog.Error
	case zerolog.Disabled:
		return hclog.Off
	default:
		return hclog.Info
	}
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Output:    os.Stderr,
		Pretty:    false,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
