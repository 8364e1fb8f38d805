package capture

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akave-ai/apicapture/internal/model"
)

// Call is an event-driven call object: request state is accumulated through
// Open and SetRequestHeader, Send dispatches, and load-end listeners run once
// the call settles on success, failure or abort.
type Call interface {
	ID() uint64
	Open(method, url string) error
	SetRequestHeader(name, value string) error
	Send(body any) error
	Abort()
	OnLoadEnd(fn func())
	Done() <-chan struct{}
	Status() int
	ResponseText() string
	ResponseHeader(name string) string
	AllResponseHeaders() string
}

// callState is the side-table entry for one call, created by Open and removed
// when the call settles.
type callState struct {
	method  string
	url     string
	headers map[string]string
}

// WrapCallFactory decorates a call constructor so every call it returns is
// captured.
func (i *Interceptor) WrapCallFactory(next func() Call) func() Call {
	return func() Call {
		return i.WrapCall(next())
	}
}

// WrapCall returns c with Open, SetRequestHeader and Send instrumented.
func (i *Interceptor) WrapCall(c Call) Call {
	return &capturedCall{Call: c, i: i}
}

type capturedCall struct {
	Call
	i *Interceptor
}

func (c *capturedCall) Open(method, url string) error {
	c.i.mu.Lock()
	c.i.calls[c.ID()] = &callState{
		method:  strings.ToUpper(method),
		url:     url,
		headers: map[string]string{},
	}
	c.i.mu.Unlock()
	return c.Call.Open(method, url)
}

func (c *capturedCall) SetRequestHeader(name, value string) error {
	c.i.mu.Lock()
	if st, ok := c.i.calls[c.ID()]; ok {
		setHeader(st.headers, name, value)
	}
	c.i.mu.Unlock()
	return c.Call.SetRequestHeader(name, value)
}

// Abort drops the side-table entry; an in-flight attempt still settles from
// its own snapshot.
func (c *capturedCall) Abort() {
	c.i.mu.Lock()
	delete(c.i.calls, c.ID())
	c.i.mu.Unlock()
	c.Call.Abort()
}

func (c *capturedCall) Send(body any) error {
	c.i.mu.Lock()
	st, ok := c.i.calls[c.ID()]
	var snap callState
	if ok {
		snap = callState{method: st.method, url: st.url, headers: copyHeaders(st.headers)}
	}
	c.i.mu.Unlock()
	if !ok || !c.i.ShouldCapture(snap.url) {
		return c.Call.Send(body)
	}

	attempt := &sendAttempt{
		state:   st,
		snap:    snap,
		start:   c.i.now(),
		reqBody: c.i.requestBody(body),
	}
	c.Call.OnLoadEnd(func() { c.settle(attempt) })

	if err := c.Call.Send(body); err != nil {
		attempt.cancelled.Store(true)
		attempt.once.Do(attempt.release)
		return err
	}
	return nil
}

// sendAttempt is what a load-end listener needs to build the record for one
// Send. A cancelled attempt (Send returned an error) never emits. Call objects
// keep their listeners across reuse, so an attempt drops its snapshot and body
// once it has settled.
type sendAttempt struct {
	state     *callState
	snap      callState
	start     time.Time
	reqBody   any
	once      sync.Once
	cancelled atomic.Bool
}

func (c *capturedCall) settle(a *sendAttempt) {
	if a.cancelled.Load() {
		return
	}
	a.once.Do(func() {
		duration := c.i.elapsed(a.start)

		c.i.mu.Lock()
		if c.i.calls[c.ID()] == a.state {
			delete(c.i.calls, c.ID())
		}
		c.i.mu.Unlock()

		rec := model.Record{
			URL:            a.snap.url,
			Method:         a.snap.method,
			RequestHeaders: a.snap.headers,
			RequestBody:    a.reqBody,
			StatusCode:     c.Status(),
			DurationMS:     duration,
			InitiatorType:  model.InitiatorXHR,
		}
		rec.ResponseHeaders = c.i.guard("response headers", map[string]string{}, func() any {
			return ParseRawHeaders(c.AllResponseHeaders())
		}).(map[string]string)
		rec.ResponseBody = c.i.guard("response body", model.PlaceholderReadFailed, func() any {
			if !IsTextual(c.ResponseHeader("content-type")) {
				return model.PlaceholderNonText
			}
			return ParseText(c.ResponseText())
		})
		c.i.emit(rec)
		a.release()
	})
}

func (a *sendAttempt) release() {
	a.state = nil
	a.snap = callState{}
	a.reqBody = nil
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
