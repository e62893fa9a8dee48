// Package logging provides the logr.Logger used for taleforge's
// operational (non-audit) log output, backed by Zap.
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds a logr.Logger backed by Zap. LOG_LEVEL=debug or LOG_LEVEL=trace
// selects a development config with debug-level output; anything else
// (including unset) selects a production config. The returned func must be
// deferred by the caller to flush buffered log entries on exit.
func New() (logr.Logger, func(), error) {
	z, err := newZapLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return logr.Logger{}, nil, err
	}
	sync := func() { _ = z.Sync() }
	return zapr.NewLogger(z), sync, nil
}

func newZapLogger(level string) (*zap.Logger, error) {
	if level == "debug" || level == "trace" {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
	return zap.NewProduction()
}
