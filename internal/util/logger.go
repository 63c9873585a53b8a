package util

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger initializes the global logger. level overrides the default
// level of the environment when it parses.
func InitLogger(env, level string) error {
	var err error
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	logger, err = config.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// ErrorReporter records failures that were already handled and shown to the
// visitor. It never fails.
type ErrorReporter struct {
	logger *zap.Logger
}

// NewErrorReporter wraps a logger; nil uses the global logger
func NewErrorReporter(l *zap.Logger) *ErrorReporter {
	if l == nil {
		l = GetLogger()
	}
	return &ErrorReporter{logger: l.Named("errors")}
}

// LogError logs err with the given context fields and the active trace id
func (r *ErrorReporter) LogError(ctx context.Context, err error, fields map[string]string) {
	if r == nil || err == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf, zap.Error(err))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		zf = append(zf, zap.String("trace_id", sc.TraceID().String()))
	}
	for k, v := range fields {
		zf = append(zf, zap.String(k, v))
	}
	r.logger.Error("Handled failure", zf...)
}
