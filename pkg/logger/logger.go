// Package logger provides a zerolog logger configured the same way across
// every binary in the module: RFC3339 timestamps, caller info, and an
// optional human-readable console writer for local runs.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level  string
	Pretty bool
}

// New builds a zerolog.Logger from cfg and sets the process-wide global level.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05Z07:00"

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output = os.Stdout
	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		})
	}

	return logger
}

// SetGlobalLogger installs log as zerolog.DefaultContextLogger, the logger
// returned by zerolog.Ctx for contexts that carry none. It does not replace
// the package-level logger in github.com/rs/zerolog/log.
func SetGlobalLogger(log zerolog.Logger) {
	zerolog.DefaultContextLogger = &log
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
