// Package logging builds zap loggers and adapts them to the service Logger
// interface.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	Level   string // debug|info|warn|error (default info)
	Format  string // json|console (default json)
	Service string
	Output  io.Writer // default os.Stdout
}

// New builds a zap logger writing to opts.Output.
func New(opts Options) (*zap.Logger, error) {
	level := zap.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), level)
	zopts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.Service != "" {
		zopts = append(zopts, zap.Fields(zap.String("service.name", opts.Service)))
	}
	return zap.New(core, zopts...), nil
}

// Logger adapts a zap SugaredLogger to the key/value Logger used by the
// service and the jobs.
type Logger struct {
	s *zap.SugaredLogger
}

// Adapt wraps l. A nil logger yields a no-op logger.
func Adapt(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Logger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

// With returns a logger carrying the extra key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.s.Sync() }
