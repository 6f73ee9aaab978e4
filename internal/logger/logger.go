// Package logger is the structured logger shared by ocket's storage layers.
// Components take an optional *Logger and fall back to Nop().
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the handful of helpers the storage layers need.
// A nil *Logger is not valid; use Nop() when logging is not wanted.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string    `yaml:"level" toml:"level"`             // debug, info, warn, error, disabled
	Format     string    `yaml:"format" toml:"format"`           // json, console
	TimeFormat string    `yaml:"time_format" toml:"time_format"` // rfc3339, unix, unixms, unixmicro
	Output     io.Writer `yaml:"-" toml:"-"`
}

// DefaultConfig returns production-ready defaults
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		Output:     os.Stdout,
	}
}

// New creates a logger from cfg. A nil cfg means DefaultConfig().
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = timeFormat(cfg.TimeFormat)
	zlog := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// OrNop returns l, or Nop() when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// WithContext stores l in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext retrieves the logger stored by WithContext, or Nop().
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return Nop()
	}
	return &Logger{zlog: *zlog}
}

// Fields is a set of structured fields attached to a single event.
type Fields map[string]any

// With returns a child logger that adds fields to every event.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{zlog: l.zlog.With().Fields(map[string]any(fields)).Logger()}
}

// DebugWith logs msg at debug level with fields.
func (l *Logger) DebugWith(msg string, fields Fields) {
	l.zlog.Debug().Fields(map[string]any(fields)).Msg(msg)
}

// InfoWith logs msg at info level with fields.
func (l *Logger) InfoWith(msg string, fields Fields) {
	l.zlog.Info().Fields(map[string]any(fields)).Msg(msg)
}

// WarnWith logs msg at warn level with err and fields.
func (l *Logger) WarnWith(msg string, err error, fields Fields) {
	l.zlog.Warn().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

// ErrorWith logs msg at error level with err and fields.
func (l *Logger) ErrorWith(msg string, err error, fields Fields) {
	l.zlog.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func timeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}
