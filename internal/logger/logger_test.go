package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/akave-ai/apicapture/internal/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.ObservabilityConfig{
		ServiceName: "apicapture",
		Environment: "production",
		Logging:     config.LoggingConfig{Level: "warn"},
	}
	l := Component(NewWithWriter(cfg, &buf), "relay")

	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	l.Warn().Msg("shown")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if line["service"] != "apicapture" || line["env"] != "production" || line["component"] != "relay" {
		t.Fatalf("missing fields: %v", line)
	}
	if line["message"] != "shown" {
		t.Fatalf("message = %v", line["message"])
	}
}

func TestNewWithWriter_ConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.ObservabilityConfig{Environment: "development"}
	l := NewWithWriter(cfg, &buf)
	l.Info().Msg("hello")
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("expected console output, got json %q", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Fatalf("message missing: %q", buf.String())
	}
}
