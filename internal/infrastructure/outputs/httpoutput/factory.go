package httpoutput

import (
	"fmt"
	"net/url"

	"github.com/akave-ai/apicapture/internal/infrastructure/outputs"
)

func init() {
	outputs.GlobalRegistry.Register(&Factory{})
}

// Factory creates sink outputs that POST records to the collector. Registers as "http".
type Factory struct{}

func (f *Factory) Name() string {
	return "http"
}

func (f *Factory) ConfigSpec() outputs.OutputTypeInfo {
	return outputs.OutputTypeInfo{
		Type:        "http",
		Description: "Collector sink. POSTs every captured record as JSON to endpoint+path. Failures are logged and never retried.",
		Fields: []outputs.ConfigField{
			{Name: "endpoint", Type: "string", Required: false, Description: "Collector base URL", Example: DefaultEndpoint},
			{Name: "path", Type: "string", Required: false, Description: "Path the records are posted to", Example: DefaultPath},
			{Name: "timeout", Type: "duration", Required: false, Description: "Per-request timeout", Example: "5s"},
		},
	}
}

func (f *Factory) ValidateConfig(cfg outputs.Config) error {
	u, err := url.Parse(cfg.String("endpoint", DefaultEndpoint))
	if err != nil {
		return fmt.Errorf("invalid 'endpoint': %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid 'endpoint': scheme must be http or https")
	}
	return nil
}

func (f *Factory) Create(cfg outputs.Config) (outputs.RecordOutput, error) {
	if err := f.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return NewOutput(
		cfg.String("endpoint", DefaultEndpoint),
		cfg.String("path", DefaultPath),
		cfg.Duration("timeout", DefaultTimeout),
	), nil
}
