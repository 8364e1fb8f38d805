// Package forwarder is the privileged end of the capture pipeline. It receives
// CAPTURED_REQUEST messages and hands each record to every running output.
package forwarder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/apicapture/internal/infrastructure/outputs"
	"github.com/akave-ai/apicapture/internal/messaging"
	"github.com/akave-ai/apicapture/internal/model"
)

const (
	DefaultWriteTimeout = 5 * time.Second
	customEventType     = "CapturedRequest"
)

// Targets supplies the outputs a record is written to.
type Targets interface {
	Active() []outputs.RecordOutput
}

type Options struct {
	Targets      Targets
	Recent       *RecentStore
	NewRelic     *newrelic.Application
	WriteTimeout time.Duration
	Logger       zerolog.Logger
	Now          func() time.Time
}

type Forwarder struct {
	opts Options
	log  zerolog.Logger

	received atomic.Int64
	ignored  atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64
}

type Stats struct {
	Received int64 `json:"received"`
	Ignored  int64 `json:"ignored"`
	Written  int64 `json:"written"`
	Failed   int64 `json:"failed"`
}

func New(opts Options) *Forwarder {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Recent == nil {
		opts.Recent = NewRecentStore(DefaultRecentSize)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Forwarder{
		opts: opts,
		log:  opts.Logger.With().Str("component", "forwarder").Logger(),
	}
}

// Attach subscribes the forwarder to ch.
func (f *Forwarder) Attach(ch *messaging.Channel) {
	ch.OnMessage(f.Handle)
}

// Handle processes one message. Anything but CAPTURED_REQUEST is ignored.
// Outputs are written concurrently, so a slow output holds the channel for at
// most one WriteTimeout and never delays the others.
func (f *Forwarder) Handle(msg messaging.Message) {
	if msg.Type != model.CapturedRequestType {
		f.ignored.Add(1)
		return
	}
	f.received.Add(1)
	rec := msg.Data
	f.opts.Recent.Add(rec, f.opts.Now().UTC())
	f.recordEvent(rec)

	if f.opts.Targets == nil {
		return
	}
	var wg sync.WaitGroup
	for _, out := range f.opts.Targets.Active() {
		wg.Add(1)
		go func(out outputs.RecordOutput) {
			defer wg.Done()
			f.write(out, rec)
		}(out)
	}
	wg.Wait()
}

func (f *Forwarder) write(out outputs.RecordOutput, rec model.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), f.opts.WriteTimeout)
	defer cancel()
	if err := out.Write(ctx, rec); err != nil {
		f.failed.Add(1)
		f.log.Warn().Err(err).Str("url", rec.URL).Str("method", rec.Method).Msg("output write failed")
		return
	}
	f.written.Add(1)
}

func (f *Forwarder) recordEvent(rec model.Record) {
	if f.opts.NewRelic == nil {
		return
	}
	f.opts.NewRelic.RecordCustomEvent(customEventType, map[string]any{
		"url":           rec.URL,
		"method":        rec.Method,
		"statusCode":    rec.StatusCode,
		"durationMs":    rec.DurationMS,
		"initiatorType": string(rec.InitiatorType),
	})
}

func (f *Forwarder) Recent() *RecentStore { return f.opts.Recent }

func (f *Forwarder) Stats() Stats {
	return Stats{
		Received: f.received.Load(),
		Ignored:  f.ignored.Load(),
		Written:  f.written.Load(),
		Failed:   f.failed.Load(),
	}
}
