// Package logging provides structured, leveled logging backed by zap.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	// LevelDebug is for detailed diagnostic information
	LevelDebug LogLevel = "debug"
	// LevelInfo is for general informational messages
	LevelInfo LogLevel = "info"
	// LevelWarn is for recoverable anomalies
	LevelWarn LogLevel = "warn"
	// LevelError is for failures
	LevelError LogLevel = "error"
)

// LogFormat selects the output encoding
type LogFormat string

const (
	// FormatJSON emits one JSON object per line
	FormatJSON LogFormat = "json"
	// FormatText emits human-readable console lines
	FormatText LogFormat = "text"
)

// Logger is a structured logger carrying a set of fields
type Logger struct {
	zl     *zap.Logger
	level  zap.AtomicLevel
	format LogFormat
	out    zapcore.WriteSyncer
	fields []zap.Field
}

// NewLogger creates a logger writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	l := &Logger{
		level:  zap.NewAtomicLevelAt(toZapLevel(level)),
		format: format,
		out:    zapcore.Lock(os.Stdout),
	}
	l.zl = l.build()
	return l
}

func (l *Logger) build() *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if l.format == FormatText {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	return zap.New(zapcore.NewCore(enc, l.out, l.level)).With(l.fields...)
}

func (l *Logger) with(fields ...zap.Field) *Logger {
	all := make([]zap.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)
	return &Logger{
		zl:     l.zl.With(fields...),
		level:  l.level,
		format: l.format,
		out:    l.out,
		fields: all,
	}
}

// WithField returns a logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(zap.Any(key, value))
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	return l.with(zf...)
}

// WithError returns a logger carrying err
func (l *Logger) WithError(err error) *Logger {
	return l.with(zap.Error(err))
}

// Debug logs a debug message
func (l *Logger) Debug(message string) { l.zl.Debug(message) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level.Enabled(zapcore.DebugLevel) {
		l.zl.Debug(fmt.Sprintf(format, args...))
	}
}

// Info logs an info message
func (l *Logger) Info(message string) { l.zl.Info(message) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) { l.zl.Info(fmt.Sprintf(format, args...)) }

// Warn logs a warning message
func (l *Logger) Warn(message string) { l.zl.Warn(message) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.zl.Warn(fmt.Sprintf(format, args...)) }

// Error logs an error message
func (l *Logger) Error(message string) { l.zl.Error(message) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error(fmt.Sprintf(format, args...)) }

// ErrorWithErr logs an error message with an error field
func (l *Logger) ErrorWithErr(message string, err error) { l.zl.Error(message, zap.Error(err)) }

// Fatal logs a message and exits the process
func (l *Logger) Fatal(message string) { l.zl.Fatal(message) }

// Fatalf logs a formatted message and exits the process
func (l *Logger) Fatalf(format string, args ...interface{}) { l.zl.Fatal(fmt.Sprintf(format, args...)) }

// SetOutput redirects the logger's output
func (l *Logger) SetOutput(w io.Writer) {
	l.out = zapcore.AddSync(w)
	l.zl = l.build()
}

// SetLevel changes the minimum level; loggers derived from l share it
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// Sync flushes buffered output
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var globalLogger *Logger

// InitGlobalLogger initializes the process-wide logger
func InitGlobalLogger(level LogLevel, format LogFormat) {
	globalLogger = NewLogger(level, format)
}

// GetGlobalLogger returns the process-wide logger
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo, FormatJSON)
	}
	return globalLogger
}

type loggerKey struct{}

// WithLogger stores a logger in the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context logger or the global logger
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok && logger != nil {
			return logger
		}
	}
	return GetGlobalLogger()
}

// Info logs an info message on the global logger
func Info(message string) { GetGlobalLogger().Info(message) }

// Infof logs a formatted info message on the global logger
func Infof(format string, args ...interface{}) { GetGlobalLogger().Infof(format, args...) }

// Warnf logs a formatted warning on the global logger
func Warnf(format string, args ...interface{}) { GetGlobalLogger().Warnf(format, args...) }

// Errorf logs a formatted error on the global logger
func Errorf(format string, args ...interface{}) { GetGlobalLogger().Errorf(format, args...) }

// Fatalf logs on the global logger and exits
func Fatalf(format string, args ...interface{}) { GetGlobalLogger().Fatalf(format, args...) }

// WithField adds a field to the global logger
func WithField(key string, value interface{}) *Logger { return GetGlobalLogger().WithField(key, value) }

// WithFields adds fields to the global logger
func WithFields(fields map[string]interface{}) *Logger { return GetGlobalLogger().WithFields(fields) }

// WithError adds an error to the global logger
func WithError(err error) *Logger { return GetGlobalLogger().WithError(err) }

// ParseLogLevel parses a level name, defaulting to info
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseLogFormat parses a format name, defaulting to json
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return FormatText
	}
	return FormatJSON
}
