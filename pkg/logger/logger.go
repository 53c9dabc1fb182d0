// Package logger builds the zerolog loggers used across the pipeline.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultTimeFormat is the console timestamp layout when Pretty is on.
const defaultTimeFormat = "15:04:05"

// Config holds logger configuration.
type Config struct {
	Level      string    // debug, info, warn, error; unknown values fall back to info
	Pretty     bool      // human-readable console output instead of JSON
	TimeFormat string    // console timestamp layout, defaults to 15:04:05
	Writer     io.Writer // destination, defaults to stdout
}

// New creates a structured logger and sets the global level to match.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Writer
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		format := cfg.TimeFormat
		if format == "" {
			format = defaultTimeFormat
		}
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: format,
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger sets the package-level logger used by zerolog/log.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
