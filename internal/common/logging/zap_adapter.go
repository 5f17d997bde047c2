package logging

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter wraps zap.Logger to implement our Logger interface
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapLogger creates a new zap-based logger
func NewZapLogger(config LogConfig) (*ZapAdapter, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if config.Format == FormatJSON {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writer zapcore.WriteSyncer
	if config.Output != nil {
		writer = zapcore.AddSync(config.Output)
	} else {
		writer = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, writer, convertToZapLevel(config.Level))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	if config.Name != "" {
		logger = logger.Named(config.Name)
	}

	return &ZapAdapter{logger: logger}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &ZapAdapter{logger: zap.NewNop()}
}

// Debug logs a debug message
func (z *ZapAdapter) Debug(msg string, fields ...Field) {
	z.logger.Debug(msg, convertFields(fields)...)
}

// Info logs an info message
func (z *ZapAdapter) Info(msg string, fields ...Field) {
	z.logger.Info(msg, convertFields(fields)...)
}

// Warn logs a warning message
func (z *ZapAdapter) Warn(msg string, fields ...Field) {
	z.logger.Warn(msg, convertFields(fields)...)
}

// Error logs an error message
func (z *ZapAdapter) Error(msg string, err error, fields ...Field) {
	zapFields := convertFields(fields)
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	z.logger.Error(msg, zapFields...)
}

// WithFields returns a new logger with additional fields
func (z *ZapAdapter) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	return &ZapAdapter{logger: z.logger.With(convertFields(fields)...)}
}

// WithContext returns a new logger carrying the request id found in ctx
func (z *ZapAdapter) WithContext(ctx context.Context) Logger {
	id, ok := RequestIDFromContext(ctx)
	if !ok {
		return z
	}
	return &ZapAdapter{logger: z.logger.With(zap.String("request_id", id))}
}

// Sync flushes any buffered log entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

func convertToZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func convertFields(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = zap.Any(field.Key, field.Value)
	}
	return zapFields
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Redacted logs at most the first n characters of value, for identifiers
// such as signatures that should not appear in full.
func Redacted(key, value string, n int) Field {
	if n < 0 {
		n = 0
	}
	if len(value) > n {
		value = value[:n] + "..."
	}
	return Field{Key: key, Value: value}
}
