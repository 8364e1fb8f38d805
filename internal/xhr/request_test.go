package xhr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func waitDone(t *testing.T, r *Request) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("request did not settle")
	}
}

func TestRequest_SuccessFiresLoadEndOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Token"); got != "t1" {
			t.Errorf("expected X-Token t1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "42")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req := New(srv.Client())
	fired := make(chan struct{}, 4)
	req.OnLoadEnd(func() { fired <- struct{}{} })

	if err := req.Open("get", srv.URL); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := req.SetRequestHeader("X-Token", "t1"); err != nil {
		t.Fatalf("set header: %v", err)
	}
	if err := req.Send(nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitDone(t, req)
	<-fired
	select {
	case <-fired:
		t.Fatal("load-end fired twice")
	case <-time.After(50 * time.Millisecond):
	}

	if req.Status() != http.StatusOK {
		t.Fatalf("expected 200, got %d", req.Status())
	}
	if req.ResponseText() != `{"ok":true}` {
		t.Fatalf("unexpected body %q", req.ResponseText())
	}
	if req.ResponseHeader("content-type") != "application/json" {
		t.Fatalf("unexpected content-type %q", req.ResponseHeader("content-type"))
	}
	all := req.AllResponseHeaders()
	if !strings.Contains(all, "x-request-id: 42\r\n") {
		t.Fatalf("expected x-request-id line in %q", all)
	}
}

func TestRequest_NetworkFailureSettlesWithStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	req := New(nil)
	req.Open("GET", addr)
	if err := req.Send(nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitDone(t, req)
	if req.Status() != 0 {
		t.Fatalf("expected status 0, got %d", req.Status())
	}
	if req.Err() == nil {
		t.Fatal("expected network error")
	}
}

func TestRequest_AbortSettlesAsFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	req := New(srv.Client())
	req.Open("GET", srv.URL)
	if err := req.Send(nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	req.Abort()
	waitDone(t, req)
	if !errors.Is(req.Err(), ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", req.Err())
	}
	if req.Status() != 0 {
		t.Fatalf("expected status 0, got %d", req.Status())
	}
}

func TestRequest_InvalidStateTransitions(t *testing.T) {
	req := New(nil)
	if err := req.SetRequestHeader("a", "b"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := req.Send(nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
