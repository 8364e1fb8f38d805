package logoutput

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akave-ai/apicapture/internal/infrastructure/outputs"
	"github.com/akave-ai/apicapture/internal/model"
)

func init() {
	outputs.GlobalRegistry.Register(&Factory{})
}

// Factory creates outputs that log one structured line per record. Registers as "log".
type Factory struct{}

func (f *Factory) Name() string { return "log" }

func (f *Factory) ConfigSpec() outputs.OutputTypeInfo {
	return outputs.OutputTypeInfo{
		Type:        "log",
		Description: "Writes each captured record to the process log. Useful when no collector is running.",
		Fields: []outputs.ConfigField{
			{Name: "level", Type: "string", Required: false, Description: "Log level of the record lines", Example: "info"},
			{Name: "bodies", Type: "bool", Required: false, Description: "Include request and response bodies", Example: "false"},
		},
	}
}

func (f *Factory) Create(cfg outputs.Config) (outputs.RecordOutput, error) {
	level, err := zerolog.ParseLevel(cfg.String("level", "info"))
	if err != nil {
		return nil, err
	}
	bodies, _ := cfg["bodies"].(bool)
	return NewOutput(log.Logger, level, bodies), nil
}

// Output logs records through zerolog.
type Output struct {
	log    zerolog.Logger
	level  zerolog.Level
	bodies bool
}

func NewOutput(logger zerolog.Logger, level zerolog.Level, bodies bool) *Output {
	return &Output{
		log:    logger.With().Str("component", "output.log").Logger(),
		level:  level,
		bodies: bodies,
	}
}

func (o *Output) Start() error { return nil }
func (o *Output) Stop() error  { return nil }

func (o *Output) Write(_ context.Context, rec model.Record) error {
	ev := o.log.WithLevel(o.level).
		Str("initiator", string(rec.InitiatorType)).
		Str("method", rec.Method).
		Str("url", rec.URL).
		Int("status", rec.StatusCode).
		Int64("duration_ms", rec.DurationMS)
	if o.bodies {
		if raw, err := json.Marshal(rec.RequestBody); err == nil {
			ev = ev.RawJSON("request_body", raw)
		}
		if raw, err := json.Marshal(rec.ResponseBody); err == nil {
			ev = ev.RawJSON("response_body", raw)
		}
	}
	ev.Msg("captured request")
	return nil
}
