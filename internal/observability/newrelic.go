package observability

import (
	"github.com/akave-ai/apicapture/internal/config"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

// NewApplication starts the New Relic agent. It returns nil, nil when no licence key is
// configured; a nil *newrelic.Application is safe to use for every call in this module.
func NewApplication(cfg *config.ObservabilityConfig, logger zerolog.Logger) (*newrelic.Application, error) {
	if cfg == nil || !cfg.NewRelicEnabled() {
		logger.Info().Msg("new relic disabled")
		return nil, nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.ServiceName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(cfg.NewRelic.AppLogForwardingEnabled),
		newrelic.ConfigDistributedTracerEnabled(cfg.NewRelic.DistributedTracingEnabled),
		func(c *newrelic.Config) {
			c.Labels = map[string]string{"env": cfg.Environment}
		},
	)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("app", cfg.ServiceName).Msg("new relic enabled")
	return app, nil
}
