package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/apicapture/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	recs []model.Record
	ch   chan model.Record
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan model.Record, 16)}
}

func (r *recorder) Emit(rec model.Record) {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
	r.ch <- rec
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func (r *recorder) wait(t *testing.T) model.Record {
	t.Helper()
	select {
	case rec := <-r.ch:
		return rec
	case <-time.After(3 * time.Second):
		t.Fatal("no record emitted")
		return model.Record{}
	}
}

// fakeClock advances by step on every reading after the first.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
	read bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.read {
		c.t = c.t.Add(c.step)
	}
	c.read = true
	return c.t
}

func newTestInterceptor(rec Emitter, clock *fakeClock) *Interceptor {
	opts := Options{Logger: zerolog.Nop()}
	if clock != nil {
		opts.Now = clock.Now
	}
	return New(rec, opts)
}
