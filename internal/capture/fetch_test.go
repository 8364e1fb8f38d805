package capture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akave-ai/apicapture/internal/fetch"
	"github.com/akave-ai/apicapture/internal/model"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestWrapFetch_ReadCallRecord(t *testing.T) {
	rec := newRecorder()
	clock := &fakeClock{t: time.Unix(1700000000, 0), step: 42 * time.Millisecond}
	ic := newTestInterceptor(rec, clock)

	next := func(ctx context.Context, res fetch.Resource, init *fetch.Init) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id":1}`), nil
	}
	resp, err := ic.WrapFetch(next)(context.Background(), fetch.URL("https://api.example.com/users/1"), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("caller read: %v", err)
	}
	if string(body) != `{"id":1}` {
		t.Fatalf("caller body changed: %q", body)
	}

	got := rec.wait(t)
	if got.StatusCode != 200 || got.DurationMS != 42 || got.InitiatorType != model.InitiatorFetch {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Method != "GET" || got.URL != "https://api.example.com/users/1" {
		t.Fatalf("unexpected method/url: %s %s", got.Method, got.URL)
	}
	raw, ok := got.ResponseBody.(json.RawMessage)
	if !ok || string(raw) != `{"id":1}` {
		t.Fatalf("unexpected response body %#v", got.ResponseBody)
	}
	if got.RequestBody != nil {
		t.Fatalf("expected no request body for GET, got %#v", got.RequestBody)
	}
}

func TestWrapFetch_LargeWriteBodyIsTruncated(t *testing.T) {
	rec := newRecorder()
	ic := newTestInterceptor(rec, nil)

	payload := strings.Repeat("a", 2<<20)
	next := func(ctx context.Context, res fetch.Resource, init *fetch.Init) (*http.Response, error) {
		if init.Body != payload {
			t.Errorf("downstream saw a modified body")
		}
		return jsonResponse(http.StatusCreated, `{}`), nil
	}
	_, err := ic.WrapFetch(next)(context.Background(), fetch.URL("https://api.example.com/upload"), &fetch.Init{
		Method: "post",
		Body:   payload,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	got := rec.wait(t)
	want := strings.Repeat("a", 1<<20) + model.TruncationMarker
	if got.RequestBody != want {
		t.Fatalf("expected request body cut at 1 MiB plus marker, got %d bytes", len(got.RequestBody.(string)))
	}
	if got.Method != "POST" {
		t.Fatalf("expected upper-cased method, got %s", got.Method)
	}
}

func TestWrapFetch_SinkCallsAreNeverCaptured(t *testing.T) {
	rec := newRecorder()
	ic := newTestInterceptor(rec, nil)

	calls := 0
	next := func(ctx context.Context, res fetch.Resource, init *fetch.Init) (*http.Response, error) {
		calls++
		if init != nil && init.Method == "DELETE" {
			return nil, errors.New("connection refused")
		}
		return jsonResponse(http.StatusCreated, `{"id":"x"}`), nil
	}
	wrapped := ic.WrapFetch(next)
	for _, method := range []string{"GET", "POST", "DELETE"} {
		wrapped(context.Background(), fetch.URL("http://localhost:8000/logs/"), &fetch.Init{Method: method, Body: `{"a":1}`})
	}
	if calls != 3 {
		t.Fatalf("expected 3 delegated calls, got %d", calls)
	}
	if rec.count() != 0 {
		t.Fatalf("expected no records for sink calls, got %d", rec.count())
	}
}

func TestWrapFetch_NetworkErrorIsRecordedAndReturned(t *testing.T) {
	rec := newRecorder()
	clock := &fakeClock{t: time.Unix(0, 0), step: 7 * time.Millisecond}
	ic := newTestInterceptor(rec, clock)

	netErr := errors.New("dial tcp: connection refused")
	next := func(ctx context.Context, res fetch.Resource, init *fetch.Init) (*http.Response, error) {
		return nil, netErr
	}
	resp, err := ic.WrapFetch(next)(context.Background(), fetch.URL("https://api.example.com/users"), nil)
	if err != netErr {
		t.Fatalf("expected the original error value, got %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}

	got := rec.wait(t)
	if got.StatusCode != 0 {
		t.Fatalf("expected status 0, got %d", got.StatusCode)
	}
	if got.ResponseBody != "Error: dial tcp: connection refused" {
		t.Fatalf("unexpected response body %#v", got.ResponseBody)
	}
	if got.ResponseHeaders == nil || len(got.ResponseHeaders) != 0 {
		t.Fatalf("expected empty response headers, got %v", got.ResponseHeaders)
	}
	if got.DurationMS != 7 {
		t.Fatalf("expected duration 7, got %d", got.DurationMS)
	}
}

func TestWrapFetch_NonTextResponseNotRead(t *testing.T) {
	rec := newRecorder()
	ic := newTestInterceptor(rec, nil)

	img := []byte{0x89, 'P', 'N', 'G'}
	next := func(ctx context.Context, res fetch.Resource, init *fetch.Init) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": {"image/png"}},
			Body:       io.NopCloser(strings.NewReader(string(img))),
		}, nil
	}
	resp, err := ic.WrapFetch(next)(context.Background(), fetch.URL("https://cdn.example.com/a.png"), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(img) {
		t.Fatalf("caller body changed")
	}
	if got := rec.wait(t); got.ResponseBody != model.PlaceholderNonText {
		t.Fatalf("expected non-text placeholder, got %#v", got.ResponseBody)
	}
}

func TestWrapFetch_TransparentAgainstRealServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Server", "test")
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("echo:" + string(body)))
	}))
	defer srv.Close()

	plain := fetch.New(srv.Client())
	rec := newRecorder()
	wrapped := newTestInterceptor(rec, nil).WrapFetch(plain)

	init := &fetch.Init{Method: "PUT", Body: "payload"}
	want, err := plain(context.Background(), fetch.URL(srv.URL), init)
	if err != nil {
		t.Fatalf("plain fetch: %v", err)
	}
	wantBody, _ := io.ReadAll(want.Body)
	want.Body.Close()

	got, err := wrapped(context.Background(), fetch.URL(srv.URL), init)
	if err != nil {
		t.Fatalf("wrapped fetch: %v", err)
	}
	gotBody, _ := io.ReadAll(got.Body)
	got.Body.Close()

	if got.StatusCode != want.StatusCode || string(gotBody) != string(wantBody) {
		t.Fatalf("wrapped result differs: %d %q vs %d %q", got.StatusCode, gotBody, want.StatusCode, wantBody)
	}
	if got.Header.Get("X-Server") != want.Header.Get("X-Server") {
		t.Fatalf("headers differ")
	}

	r := rec.wait(t)
	if r.RequestBody != "payload" || r.ResponseBody != "echo:payload" || r.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.ResponseHeaders["x-server"] != "test" {
		t.Fatalf("expected lower-cased response headers, got %v", r.ResponseHeaders)
	}
}

func TestWrapFetch_ExactlyOneRecordPerCall(t *testing.T) {
	rec := newRecorder()
	ic := newTestInterceptor(rec, nil)
	next := func(ctx context.Context, res fetch.Resource, init *fetch.Init) (*http.Response, error) {
		if res.Address() == "https://api.example.com/fail" {
			return nil, errors.New("boom")
		}
		return jsonResponse(http.StatusOK, `[]`), nil
	}
	wrapped := ic.WrapFetch(next)
	wrapped(context.Background(), fetch.URL("https://api.example.com/ok"), nil)
	wrapped(context.Background(), fetch.URL("https://api.example.com/fail"), nil)
	if rec.count() != 2 {
		t.Fatalf("expected 2 records, got %d", rec.count())
	}
}
