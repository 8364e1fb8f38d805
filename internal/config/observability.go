package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

type ObservabilityConfig struct {
	ServiceName string          `koanf:"service_name"`
	Environment string          `koanf:"environment"`
	Logging     LoggingConfig   `koanf:"logging"`
	NewRelic    *NewRelicConfig `koanf:"new_relic"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
	// Format is "console" or "json"; empty picks console in development.
	Format string `koanf:"format"`
}

type NewRelicConfig struct {
	LicenseKey                string `koanf:"license_key"`
	AppLogForwardingEnabled   bool   `koanf:"app_log_forwarding_enabled"`
	DistributedTracingEnabled bool   `koanf:"distributed_tracing_enabled"`
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		Logging: LoggingConfig{Level: "info"},
	}
}

func (o *ObservabilityConfig) Validate() error {
	if o.Logging.Level == "" {
		o.Logging.Level = "info"
	}
	if _, err := zerolog.ParseLevel(o.Logging.Level); err != nil {
		return fmt.Errorf("logging level: %w", err)
	}
	switch o.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging format %q: want console or json", o.Logging.Format)
	}
	return nil
}

// LogLevel returns the parsed logging level, falling back to info.
func (o *ObservabilityConfig) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(o.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// NewRelicEnabled reports whether a licence key was configured.
func (o *ObservabilityConfig) NewRelicEnabled() bool {
	return o.NewRelic != nil && o.NewRelic.LicenseKey != ""
}
