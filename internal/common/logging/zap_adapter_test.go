package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapAdapter(t *testing.T) {
	t.Run("basic logging", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf})
		require.NoError(t, err)

		logger.Debug("debug message", Field{"key", "value"})
		logger.Info("info message", Field{"count", 42})
		logger.Warn("warn message", Field{"enabled", true})
		logger.Error("error message", errors.New("test error"), Field{"code", "ERR123"})

		output := buf.String()
		assert.Contains(t, output, "DEBUG")
		assert.Contains(t, output, "debug message")
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "info message")
		assert.Contains(t, output, "WARN")
		assert.Contains(t, output, "ERROR")
		assert.Contains(t, output, "test error")
	})

	t.Run("with fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
		require.NoError(t, err)

		scoped := logger.WithFields(
			Field{"service", "coinpayments-webhookd"},
			Field{"version", "1.0.0"},
		)
		scoped.Info("test message", Field{"event_id", "evt_123"})

		output := buf.String()
		assert.Contains(t, output, "coinpayments-webhookd")
		assert.Contains(t, output, "1.0.0")
		assert.Contains(t, output, "evt_123")
	})

	t.Run("with context", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
		require.NoError(t, err)

		ctx := ContextWithRequestID(context.Background(), "req-456")
		logger.WithContext(ctx).Info("context test")

		assert.Contains(t, buf.String(), "req-456")
		assert.Same(t, logger, logger.WithContext(context.Background()))
	})

	t.Run("log level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: WarnLevel, Output: &buf})
		require.NoError(t, err)

		logger.Debug("debug - should not appear")
		logger.Info("info - should not appear")
		logger.Warn("warn - should appear")
		logger.Error("error - should appear", nil)

		output := buf.String()
		assert.NotContains(t, output, "should not appear")
		assert.Contains(t, output, "warn - should appear")
		assert.Contains(t, output, "error - should appear")
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Format: FormatJSON, Output: &buf, Name: "receiver"})
		require.NoError(t, err)

		logger.Info("notification accepted",
			String("event_type", "invoicePaid"),
			Int("status", 200),
			Duration("took", 5*time.Millisecond),
		)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "receiver", entry["logger"])
		assert.Equal(t, "notification accepted", entry["msg"])
		assert.Equal(t, "invoicePaid", entry["event_type"])
		assert.EqualValues(t, 200, entry["status"])
	})
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("dropped")
	logger.Error("dropped", errors.New("x"))
	assert.NotNil(t, logger.WithFields(Bool("ok", true)))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		" warn ":  WarnLevel,
		"error":   ErrorLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatConsole, ParseFormat("console"))
	assert.Equal(t, FormatConsole, ParseFormat(""))
}

func TestRedacted(t *testing.T) {
	sig := strings.Repeat("ab", 64)
	f := Redacted("signature", sig, 8)
	assert.Equal(t, "abababab...", f.Value)
	assert.Equal(t, "short", Redacted("k", "short", 8).Value)
	assert.Equal(t, "...", Redacted("k", "x", -1).Value)
}
