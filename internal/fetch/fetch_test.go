package fetch

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestFetch_DefaultsToGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := New(srv.Client())(context.Background(), URL(srv.URL), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("expected ok, got %q", body)
	}
}

func TestFetch_SendsHeadersAndURLEncodedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("X-Trace"); got != "abc" {
			t.Errorf("expected X-Trace abc, got %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("q"); got != "go lang" {
			t.Errorf("expected q=go lang, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := New(srv.Client())(context.Background(), URL(srv.URL), &Init{
		Method:  "post",
		Headers: map[string]string{"X-Trace": "abc"},
		Body:    url.Values{"q": {"go lang"}},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestEncodeBody_Multipart(t *testing.T) {
	r, ct, err := EncodeBody(&multipart.Form{Value: map[string][]string{"name": {"gopher"}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", r)
	req.Header.Set("Content-Type", ct)
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}
	if got := req.FormValue("name"); got != "gopher" {
		t.Fatalf("expected gopher, got %q", got)
	}
}

func TestEncodeBody_RejectsUnknownType(t *testing.T) {
	if _, _, err := EncodeBody(struct{}{}); err == nil {
		t.Fatal("expected error for unsupported body")
	}
}
