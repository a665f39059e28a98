// Package logging adapts zap to identity.Logger.
package logging

import (
	"fmt"

	"github.com/goliatone/go-identity"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger at level. Unknown levels fall back to info.
func New(level string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)

	if level != "" {
		if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
			fmt.Printf("bad LOG_LEVEL=%s, fallback to info\n", level)
			cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}

	return cfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ identity.Logger = (*zapLogger)(nil)

// Adapt wraps l so it satisfies identity.Logger.
func Adapt(l *zap.Logger) identity.Logger {
	if l == nil {
		return identity.NopLogger{}
	}
	// skip the adapter frame so callers are reported correctly
	return &zapLogger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Named returns an adapter for a child logger.
func Named(l *zap.Logger, name string) identity.Logger {
	if l == nil {
		return identity.NopLogger{}
	}
	return Adapt(l.Named(name))
}

func (z *zapLogger) Debug(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Info(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warn(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Error(format string, args ...any) { z.sugar.Errorf(format, args...) }
