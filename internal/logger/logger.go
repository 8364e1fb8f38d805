package logger

import (
	"io"
	"os"
	"time"

	"github.com/akave-ai/apicapture/internal/config"
	"github.com/rs/zerolog"
)

// New builds the process logger from the observability config.
// Development gets a console writer, everything else JSON lines.
func New(cfg *config.ObservabilityConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

func NewWithWriter(cfg *config.ObservabilityConfig, w io.Writer) zerolog.Logger {
	if cfg == nil {
		cfg = config.DefaultObservabilityConfig()
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if cfg.Logging.Format == "console" || (cfg.Logging.Format == "" && cfg.Environment == "development") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).Level(cfg.LogLevel()).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		ctx = ctx.Str("env", cfg.Environment)
	}
	return ctx.Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
