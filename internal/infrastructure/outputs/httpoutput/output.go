package httpoutput

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akave-ai/apicapture/internal/model"
)

const (
	DefaultEndpoint = "http://localhost:8000"
	DefaultPath     = "/logs/"
	DefaultTimeout  = 5 * time.Second

	maxErrorBody = 512
)

// Output posts records to the collector sink. One request per record, no retry.
type Output struct {
	url    string
	client *http.Client
}

func NewOutput(endpoint, path string, timeout time.Duration) *Output {
	return &Output{
		url:    strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (o *Output) URL() string { return o.url }

func (o *Output) Start() error { return nil }

func (o *Output) Stop() error {
	o.client.CloseIdleConnections()
	return nil
}

func (o *Output) Write(ctx context.Context, rec model.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to sink: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("sink rejected record: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
