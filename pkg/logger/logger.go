// Package logger builds the zap logger shared by every component.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger at the given level. Production environments get JSON
// output; anything else gets the human-readable console encoder.
func New(level, env string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// Must is New that falls back to a production logger instead of failing.
func Must(level, env string) *zap.Logger {
	l, err := New(level, env)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Warn("failed to initialize configured logger, using fallback", zap.Error(err))
		return fallback
	}
	return l
}

// Redact shortens an identifier for logs, keeping a short prefix.
func Redact(s string) string {
	if len(s) <= 6 {
		return s
	}
	return s[:6] + "…"
}
