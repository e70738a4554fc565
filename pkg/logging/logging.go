// Package logging provides unified zap logger construction for the
// registry daemon and its tools.
package logging

import (
	"go.uber.org/zap"
)

// Config contains logging configuration.
// This is designed to be embedded or reused across different config structures.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `yaml:"level" envconfig:"LEVEL"`
	// Format is the output format: json or text
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// NewLogger creates a new zap logger based on the configuration
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapCfg.Build()
}
