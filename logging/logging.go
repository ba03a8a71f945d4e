// Package logging provides the process-wide zap logger used by dirpull.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	globalLogger = newDefault()
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Init replaces the global logger. Call it once, before any goroutine logs.
func Init(cfg Config) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	}

	globalLevel.SetLevel(level)
	config.Level = globalLevel
	if cfg.OutputPath != "" {
		config.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	globalLogger = logger
	return nil
}

func newDefault() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = globalLevel
	config.DisableStacktrace = true
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Sync flushes any buffered log entries.
func Sync() error {
	return globalLogger.Sync()
}

// L returns the global logger.
func L() *zap.Logger {
	return globalLogger
}

// Named returns a logger tagged with a component name.
func Named(component string) *zap.Logger {
	return L().With(zap.String("component", component))
}
