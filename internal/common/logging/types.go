// Package logging provides structured logging types and interfaces
package logging

import (
	"context"
	"io"
	"strings"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DebugLevel is the most verbose level
	DebugLevel LogLevel = iota
	// InfoLevel is for general informational messages
	InfoLevel
	// WarnLevel is for warning messages
	WarnLevel
	// ErrorLevel is for error messages
	ErrorLevel
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Format selects the log encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	WithFields(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  LogLevel
	Format Format
	Output io.Writer
	Name   string
}

// ParseLevel converts a string to a LogLevel, defaulting to InfoLevel
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// ParseFormat converts a string to a Format, defaulting to FormatConsole
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatConsole
}

type contextKey int

const requestIDKey contextKey = iota

// ContextWithRequestID returns a copy of ctx carrying id. Loggers derived
// with WithContext include it as request_id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}
