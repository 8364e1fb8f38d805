package capture

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akave-ai/apicapture/internal/model"
	"github.com/akave-ai/apicapture/internal/xhr"
)

func newXHRFactory(client *http.Client) func() Call {
	return func() Call { return xhr.New(client) }
}

func waitCall(t *testing.T, c Call) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("call did not settle")
	}
}

func TestWrapCall_RecordsSettledCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"saved":true}`))
	}))
	defer srv.Close()

	rec := newRecorder()
	newCall := newTestInterceptor(rec, nil).WrapCallFactory(newXHRFactory(srv.Client()))

	c := newCall()
	if err := c.Open("post", srv.URL+"/items"); err != nil {
		t.Fatalf("open: %v", err)
	}
	c.SetRequestHeader("X-Api-Key", "first")
	c.SetRequestHeader("X-Api-Key", "second")
	if err := c.Send(`{"name":"a"}`); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitCall(t, c)

	got := rec.wait(t)
	if got.InitiatorType != model.InitiatorXHR || got.Method != "POST" || got.StatusCode != 200 {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.RequestHeaders["X-Api-Key"] != "second" || len(got.RequestHeaders) != 1 {
		t.Fatalf("expected last-set header only, got %v", got.RequestHeaders)
	}
	if raw, ok := got.RequestBody.(json.RawMessage); !ok || string(raw) != `{"name":"a"}` {
		t.Fatalf("unexpected request body %#v", got.RequestBody)
	}
	if raw, ok := got.ResponseBody.(json.RawMessage); !ok || string(raw) != `{"saved":true}` {
		t.Fatalf("unexpected response body %#v", got.ResponseBody)
	}
	if got.ResponseHeaders["content-type"] != "application/json" {
		t.Fatalf("unexpected response headers %v", got.ResponseHeaders)
	}
	if c.ResponseText() != `{"saved":true}` {
		t.Fatalf("call response changed: %q", c.ResponseText())
	}
}

func TestWrapCall_FailureRecordedWithStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	rec := newRecorder()
	c := newTestInterceptor(rec, nil).WrapCall(xhr.New(nil))
	c.Open("GET", addr)
	if err := c.Send(nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitCall(t, c)

	got := rec.wait(t)
	if got.StatusCode != 0 {
		t.Fatalf("expected status 0, got %d", got.StatusCode)
	}
	if got.DurationMS < 0 {
		t.Fatalf("negative duration %d", got.DurationMS)
	}
}

func TestWrapCall_SinkExcluded(t *testing.T) {
	rec := newRecorder()
	fake := &stubCall{id: 99, done: make(chan struct{})}
	c := newTestInterceptor(rec, nil).WrapCall(fake)
	c.Open("POST", "http://localhost:8000/logs/")
	c.Send(`{}`)
	fake.settle()
	if !fake.sent {
		t.Fatal("send not delegated")
	}
	if len(fake.listeners) != 0 {
		t.Fatalf("expected no listener for sink call, got %d", len(fake.listeners))
	}
	if rec.count() != 0 {
		t.Fatalf("expected no records, got %d", rec.count())
	}
}

func TestWrapCall_SendErrorEmitsNothing(t *testing.T) {
	rec := newRecorder()
	fake := &stubCall{id: 100, done: make(chan struct{}), sendErr: errors.New("bad state")}
	ic := newTestInterceptor(rec, nil)
	c := ic.WrapCall(fake)
	c.Open("GET", "https://api.example.com/x")
	if err := c.Send(nil); err == nil || err.Error() != "bad state" {
		t.Fatalf("expected delegated error, got %v", err)
	}
	fake.settle()
	if rec.count() != 0 {
		t.Fatalf("expected no records, got %d", rec.count())
	}
}

func TestWrapCall_CapturePanicDegrades(t *testing.T) {
	rec := newRecorder()
	fake := &stubCall{id: 101, done: make(chan struct{}), status: 200, panicHeaders: true}
	c := newTestInterceptor(rec, nil).WrapCall(fake)
	c.Open("GET", "https://api.example.com/y")
	c.Send(nil)
	fake.settle()

	got := rec.wait(t)
	if got.StatusCode != 200 || len(got.ResponseHeaders) != 0 {
		t.Fatalf("expected record with degraded headers, got %+v", got)
	}
}

// stubCall is a Call that settles only when told to.
type stubCall struct {
	id           uint64
	done         chan struct{}
	status       int
	sent         bool
	sendErr      error
	panicHeaders bool
	listeners    []func()
}

func (s *stubCall) ID() uint64                         { return s.id }
func (s *stubCall) Open(method, url string) error      { return nil }
func (s *stubCall) SetRequestHeader(n, v string) error { return nil }
func (s *stubCall) Abort()                             {}
func (s *stubCall) OnLoadEnd(fn func())                { s.listeners = append(s.listeners, fn) }
func (s *stubCall) Done() <-chan struct{}              { return s.done }
func (s *stubCall) Status() int                        { return s.status }
func (s *stubCall) ResponseText() string               { return "" }
func (s *stubCall) ResponseHeader(string) string       { return "" }

func (s *stubCall) Send(body any) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = true
	return nil
}

func (s *stubCall) AllResponseHeaders() string {
	if s.panicHeaders {
		panic("header table corrupted")
	}
	return ""
}

func (s *stubCall) settle() {
	close(s.done)
	for _, fn := range s.listeners {
		fn()
	}
}

func TestWrapCall_AbortRecordedWithStatusZero(t *testing.T) {
	arrived := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	c := newTestInterceptor(rec, nil).WrapCall(xhr.New(srv.Client()))
	c.Open("GET", srv.URL+"/slow")
	if err := c.Send(nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-arrived:
	case <-time.After(3 * time.Second):
		t.Fatal("request never reached the server")
	}
	c.Abort()
	waitCall(t, c)

	got := rec.wait(t)
	if got.StatusCode != 0 {
		t.Fatalf("expected status 0 after abort, got %d", got.StatusCode)
	}
	if got.URL != srv.URL+"/slow" || got.Method != "GET" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.ResponseBody != model.PlaceholderNonText {
		t.Fatalf("unexpected response body %#v", got.ResponseBody)
	}
	if n := rec.count(); n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}
}

func TestWrapCall_ReusedCallRecordsEachSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	rec := newRecorder()
	c := newTestInterceptor(rec, nil).WrapCall(xhr.New(srv.Client()))
	for _, path := range []string{"/first", "/second"} {
		if err := c.Open("GET", srv.URL+path); err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		if err := c.Send(nil); err != nil {
			t.Fatalf("send %s: %v", path, err)
		}
		waitCall(t, c)
		got := rec.wait(t)
		if got.URL != srv.URL+path || got.ResponseBody != path {
			t.Fatalf("record for %s: %+v", path, got)
		}
	}
	if n := rec.count(); n != 2 {
		t.Fatalf("expected one record per send, got %d", n)
	}
}

func TestWrapCall_SettledAttemptReleasesState(t *testing.T) {
	rec := newRecorder()
	ic := newTestInterceptor(rec, nil)
	c := ic.WrapCall(&stubCall{id: 101, done: make(chan struct{}), status: 200}).(*capturedCall)

	a := &sendAttempt{
		snap:    callState{method: "POST", url: "https://api.example.com/upload", headers: map[string]string{}},
		start:   ic.now(),
		reqBody: "payload",
	}
	c.settle(a)
	c.settle(a)

	if a.reqBody != nil || a.snap.url != "" || a.state != nil {
		t.Fatalf("settled attempt still holds its snapshot: %+v", a.snap)
	}
	got := rec.wait(t)
	if got.URL != "https://api.example.com/upload" || got.RequestBody != "payload" {
		t.Fatalf("record built from released state: %+v", got)
	}
	if n := rec.count(); n != 1 {
		t.Fatalf("expected one record, got %d", n)
	}
}

func TestWrapCall_SendErrorReleasesState(t *testing.T) {
	fake := &stubCall{id: 102, done: make(chan struct{}), sendErr: errors.New("bad state")}
	c := newTestInterceptor(newRecorder(), nil).WrapCall(fake)
	c.Open("POST", "https://api.example.com/x")
	c.Send(`{"big":true}`)
	if len(fake.listeners) != 1 {
		t.Fatalf("expected one listener, got %d", len(fake.listeners))
	}
	// The listener of a failed send is inert even when the call settles later.
	fake.settle()
}
