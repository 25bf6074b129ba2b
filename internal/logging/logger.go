// Package logging builds the zerolog logger handed to every component.
//
// There is no global logger: main creates one with New and passes it down,
// and components derive their own with
//
//	log.With().Str("component", "projector").Logger()
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, disabled.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic disabled"`

	// Format is json or console.
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`

	// Caller adds file:line to every entry.
	Caller bool `koanf:"caller"`

	// Output defaults to os.Stderr.
	Output io.Writer `koanf:"-"`
}

// DefaultConfig returns json output at info level.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

// New builds a logger from cfg.
func New(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := cfg.Output
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05.000"}
	}

	ctx := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel maps a level name to a zerolog level; unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
