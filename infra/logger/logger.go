package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/gridsim/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Options tunes the output of loggers created with New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `json:"level"`
	// Format is json or console. Empty defers to APP_ENV.
	Format string `json:"format"`
}

// Validate checks that the level and format are known.
func (o Options) Validate() error {
	if _, err := ParseLevel(o.Level); err != nil {
		return err
	}
	switch strings.ToLower(o.Format) {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", o.Format)
	}
}

// ParseLevel maps a configuration level onto zerolog.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

var defaults Options

// Configure sets the options applied by subsequent calls to New.
func Configure(o Options) error {
	if err := o.Validate(); err != nil {
		return err
	}
	defaults = o
	return nil
}

// NopLogger implements Logger with no-op methods.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Infow(string, map[string]any)  {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Warnw(string, map[string]any)  {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a Logger for the given component.
func New(component string) Logger {
	return NewZerologLogger(component, defaults)
}
