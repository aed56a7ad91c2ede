package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/config"
)

const serviceName = "tyed"

// SetupLogger builds the process logger writing to stdout.
func SetupLogger(cfg *config.LoggingConfig) zerolog.Logger {
	return New(cfg, os.Stdout)
}

// New builds a console logger on out. An unknown level falls back to info.
// The level is also installed globally so libraries logging through zerolog
// agree with it.
func New(cfg *config.LoggingConfig, out io.Writer) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    out != os.Stdout,
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	return zerolog.New(consoleWriter).
		Level(level).
		With().
		Timestamp().
		Caller().
		Str("service", serviceName).
		Str("host", hostname).
		Logger()
}
