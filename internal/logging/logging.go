package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
}

// NewLogger constructs a zerolog logger from config, tagged with the app name.
func NewLogger(cfg Config, app string) zerolog.Logger {
	return NewLoggerTo(cfg, app, output(cfg.Output))
}

// NewLoggerTo is NewLogger with an explicit destination.
func NewLoggerTo(cfg Config, app string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	writer := out
	if cfg.PrettyPrint || strings.EqualFold(cfg.Format, "console") {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	builder := zerolog.New(writer).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if app != "" {
		builder = builder.Str("app", app)
	}
	if cfg.Caller {
		builder = builder.Caller()
	}
	return builder.Logger()
}

// ParseLevel maps a level name to zerolog, falling back to info.
func ParseLevel(name string) zerolog.Level {
	if strings.TrimSpace(name) == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func output(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}
