package system

import (
	"go.uber.org/zap"
)

// NewTestLogger returns a sugared logger configured for tests. It mirrors the
// development logger but disables automatic stacktraces so expected warnings
// from fallback paths don't flood test output.
func NewTestLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	logger, _ := cfg.Build()
	return logger.Sugar()
}
