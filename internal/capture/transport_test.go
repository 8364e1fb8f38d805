package capture

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/akave-ai/apicapture/internal/model"
)

func TestTransport_CapturesAndReplaysRequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"name":"gopher"}` {
			t.Errorf("server saw body %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	rec := newRecorder()
	client := &http.Client{Transport: newTestInterceptor(rec, nil).Transport(srv.Client().Transport)}

	// io.MultiReader hides the concrete type so the request has no GetBody.
	body := io.MultiReader(strings.NewReader(`{"name":"gopher"}`))
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/pets", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(respBody) != `{"id":7}` {
		t.Fatalf("caller body changed: %q", respBody)
	}

	got := rec.wait(t)
	if raw, ok := got.RequestBody.(json.RawMessage); !ok || string(raw) != `{"name":"gopher"}` {
		t.Fatalf("unexpected request body %#v", got.RequestBody)
	}
	if got.StatusCode != http.StatusCreated || got.InitiatorType != model.InitiatorFetch {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.RequestHeaders["content-type"] != "application/json" {
		t.Fatalf("unexpected request headers %v", got.RequestHeaders)
	}
}

func TestTransport_URLEncodedUsesGetBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("a") != "1" {
			t.Errorf("server did not receive form")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := newRecorder()
	client := &http.Client{Transport: newTestInterceptor(rec, nil).Transport(nil)}
	resp, err := client.PostForm(srv.URL, url.Values{"a": {"1"}, "b": {"2"}})
	if err != nil {
		t.Fatalf("post form: %v", err)
	}
	resp.Body.Close()

	if got := rec.wait(t); got.RequestBody != "a=1&b=2" {
		t.Fatalf("unexpected request body %#v", got.RequestBody)
	}
}

func TestTransport_BinaryAndMultipartNotRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := newRecorder()
	client := &http.Client{Transport: newTestInterceptor(rec, nil).Transport(nil)}

	resp, err := client.Post(srv.URL, "application/octet-stream", bytes.NewReader([]byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if got := rec.wait(t); got.RequestBody != model.PlaceholderBinary {
		t.Fatalf("expected binary placeholder, got %#v", got.RequestBody)
	}

	resp, err = client.Post(srv.URL, "multipart/form-data; boundary=x", strings.NewReader("--x--"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if got := rec.wait(t); got.RequestBody != model.PlaceholderFormData {
		t.Fatalf("expected form placeholder, got %#v", got.RequestBody)
	}
}

func TestTransport_SinkExcluded(t *testing.T) {
	rec := newRecorder()
	called := false
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: 201, Header: http.Header{}, Body: http.NoBody}, nil
	})
	client := &http.Client{Transport: newTestInterceptor(rec, nil).Transport(next)}
	resp, err := client.Post("http://localhost:8000/logs/", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if !called || rec.count() != 0 {
		t.Fatalf("expected pass-through without record (called=%v, records=%d)", called, rec.count())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
