package config

import (
	"github.com/kilianp07/gridsim/infra/logger"
)

// LoggingConfig defines the level and output format of the process logs.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Format is json or console. Empty defers to APP_ENV.
	Format string `json:"format"`
}

// Options converts the section into logger options.
func (c LoggingConfig) Options() logger.Options {
	return logger.Options{Level: c.Level, Format: c.Format}
}

// Validate checks the level and format.
func (c LoggingConfig) Validate() error { return c.Options().Validate() }
