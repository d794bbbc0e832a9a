// Package logger provides structured logging for the dispatch layer.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig controls how the logger is built.
type LoggingConfig struct {
	// Level is the minimum level to emit: debug, info, warn, error.
	Level string
	// Format selects the encoder: json or console.
	Format string
	// Output is the sink: stdout, stderr, or a file path.
	Output string
	// FilePrefix is prepended to the log file name when Output is "file".
	FilePrefix string
}

// Logger wraps a zap sugared logger with key-value logging methods.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger from the given configuration. Invalid values fall back
// to info-level console logging on stderr.
func New(cfg LoggingConfig) *Logger {
	level := zapcore.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.ToLower(cfg.Format) == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sink := resolveSink(cfg)
	core := zapcore.NewCore(enc, sink, level)
	return &Logger{s: zap.New(core).Sugar()}
}

// NewDefault returns an info-level console logger tagged with the service name.
func NewDefault(service string) *Logger {
	l := New(LoggingConfig{Level: "info", Format: "console", Output: "stderr"})
	return l.With("service", service)
}

func resolveSink(cfg LoggingConfig) zapcore.WriteSyncer {
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		return zapcore.Lock(os.Stderr)
	case "stdout":
		return zapcore.Lock(os.Stdout)
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "dispatch_layer"
		}
		f, err := os.OpenFile(prefix+".log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zapcore.Lock(os.Stderr)
		}
		return zapcore.Lock(f)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zapcore.Lock(os.Stderr)
		}
		return zapcore.Lock(f)
	}
}

// With returns a child logger with the given key-value pairs attached.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *Logger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.s.Sync() }
