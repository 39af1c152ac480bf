package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output goes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		zl := l.GetZerolog()
		zl.Info().Str("model", "gpt-4o").Msg("hello")
		assert.Contains(t, buf.String(), `"model":"gpt-4o"`)
		assert.Contains(t, buf.String(), `"message":"hello"`)
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "biomni.log")
		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Debug().Msg("to file")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "WARN", Console: true, Output: &buf})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Info().Msg("hidden")
		zl.Warn().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
	})

	t.Run("redaction with configured secrets", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Console: true, Output: &buf, Redaction: true, Secrets: []string{"host-provided-secret"}})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Info().Str("key", "host-provided-secret").Msg("sk-ant-REDACTED")
		assert.NotContains(t, buf.String(), "host-provided-secret")
		assert.NotContains(t, buf.String(), "sk-ant-abcdefghij")
	})
}

func TestHCLog(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Console: true, Output: &buf})
	require.NoError(t, err)

	h := l.HCLog("plugin")
	assert.True(t, h.IsDebug())
	h.Info("handshake", "protocol", 1)
	assert.Contains(t, buf.String(), `"@module":"plugin"`)
}

func TestHCLogLevel(t *testing.T) {
	assert.Equal(t, hclog.Trace, hclogLevel(zerolog.TraceLevel))
	assert.Equal(t, hclog.Warn, hclogLevel(zerolog.WarnLevel))
	assert.Equal(t, hclog.Error, hclogLevel(zerolog.FatalLevel))
	assert.Equal(t, hclog.Off, hclogLevel(zerolog.Disabled))
	assert.Equal(t, hclog.Info, hclogLevel(zerolog.InfoLevel))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, os.Stderr, cfg.Output)
	assert.True(t, cfg.Redaction)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Console: true, Output: &buf})
	require.NoError(t, err)

	child := l.With().Str("component", "invoker").Logger()
	child.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"invoker"`)
}
