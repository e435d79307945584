// Package logging owns the process-wide zerolog logger. Subsystems attach
// through Component; everything else funnels through the level helpers.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared root logger. Prefer Component over using it directly.
var Logger zerolog.Logger

// Level aliases zerolog's level type so callers never import zerolog for
// configuration alone.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config selects the root logger's level and output.
type Config struct {
	// Level is the minimum level that gets written.
	Level Level

	// Output receives the log stream; nil means os.Stderr.
	Output io.Writer

	// Pretty switches from JSON lines to the human console writer. Meant
	// for interactive runs, not for anything that parses logs.
	Pretty bool

	// TimeFormat stamps every entry; empty means RFC3339.
	TimeFormat string
}

// DefaultConfig is JSON to stderr at info level.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Init replaces the root logger. Safe to call again, e.g. after flags are
// parsed; children created by Component before the call keep the old
// settings.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	format := cfg.TimeFormat
	if format == "" {
		format = time.RFC3339
	}

	zerolog.TimeFieldFormat = format
	// Latency fields read naturally in milliseconds.
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = true

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: format}
	}

	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// ParseLevel maps a config or flag string onto a Level, ignoring case and
// surrounding space. Anything unrecognized falls back to info rather than
// failing startup.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	}
	return InfoLevel
}

// Component returns a child logger tagged with the subsystem's name, e.g.
// Component("demux") or Component("sink.redis").
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Debug starts a debug entry on the root logger.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info entry on the root logger.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn entry on the root logger.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error entry on the root logger.
func Error() *zerolog.Event { return Logger.Error() }

// Fatal starts a fatal entry; finishing it exits the process.
func Fatal() *zerolog.Event { return Logger.Fatal() }

// With opens a field context for a one-off child logger.
func With() zerolog.Context { return Logger.With() }

func init() {
	// A usable logger exists before Init so early failures still log.
	Init(DefaultConfig())
}
