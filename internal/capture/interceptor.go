// Package capture wraps outgoing network calls and turns each settled call
// into a model.Record handed to an Emitter. Wrapping never changes what the
// caller observes: results, errors and response bodies pass through as-is,
// and failures inside the capture path are absorbed.
package capture

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/apicapture/internal/model"
)

const (
	DefaultSinkBaseURL  = "http://localhost:8000"
	DefaultMaxBodyBytes = 1 << 20
)

type Options struct {
	// SinkBaseURL is the collector's own address; calls under it are never captured.
	SinkBaseURL string
	// MaxBodyBytes is the truncation ceiling for captured bodies.
	MaxBodyBytes int
	Logger       zerolog.Logger
	// Now is the clock used for durations. Defaults to time.Now.
	Now func() time.Time
}

// Interceptor builds records for wrapped calls.
type Interceptor struct {
	emitter Emitter
	sink    string
	maxBody int
	log     zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	calls map[uint64]*callState
}

func New(emitter Emitter, opts Options) *Interceptor {
	if opts.SinkBaseURL == "" {
		opts.SinkBaseURL = DefaultSinkBaseURL
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Interceptor{
		emitter: emitter,
		sink:    opts.SinkBaseURL,
		maxBody: opts.MaxBodyBytes,
		log:     opts.Logger.With().Str("component", "interceptor").Logger(),
		now:     opts.Now,
		calls:   make(map[uint64]*callState),
	}
}

// ShouldCapture is false for addresses under the sink base URL.
func (i *Interceptor) ShouldCapture(url string) bool {
	return !strings.HasPrefix(url, i.sink)
}

func (i *Interceptor) elapsed(start time.Time) int64 {
	d := i.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d.Round(time.Millisecond).Milliseconds()
}

// emit truncates both bodies and hands the record to the emitter. Nothing
// raised here reaches the caller.
func (i *Interceptor) emit(rec model.Record) {
	defer func() {
		if r := recover(); r != nil {
			i.log.Debug().Interface("panic", r).Str("url", rec.URL).Msg("emit failed")
		}
	}()
	rec.RequestBody = Truncate(rec.RequestBody, i.maxBody)
	rec.ResponseBody = Truncate(rec.ResponseBody, i.maxBody)
	if rec.RequestHeaders == nil {
		rec.RequestHeaders = map[string]string{}
	}
	if rec.ResponseHeaders == nil {
		rec.ResponseHeaders = map[string]string{}
	}
	i.emitter.Emit(rec)
}

// guard runs fn and degrades any panic to fallback.
func (i *Interceptor) guard(what string, fallback any, fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			i.log.Debug().Interface("panic", r).Str("stage", what).Msg("capture degraded")
			v = fallback
		}
	}()
	return fn()
}

func (i *Interceptor) requestBody(body any) any {
	return i.guard("request body", model.PlaceholderBinary, func() any {
		return ClassifyBody(body).Captured()
	})
}

func (i *Interceptor) headers(h any) map[string]string {
	v := i.guard("headers", map[string]string{}, func() any {
		return NormalizeHeaders(h)
	})
	return v.(map[string]string)
}

func errorBody(err error) string {
	return "Error: " + err.Error()
}
