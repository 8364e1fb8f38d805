// Package fetch is a promise-style HTTP call surface: one call takes a target
// and an optional init object and returns the response or an error.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Resource is a call target that exposes its address.
type Resource interface {
	Address() string
}

// URL is the plain string form of a Resource.
type URL string

func (u URL) Address() string { return string(u) }

// Init carries optional call configuration.
//
// Headers is either an http.Header or a map[string]string. Body is one of
// string, []byte, url.Values, *multipart.Form or io.Reader.
type Init struct {
	Method  string
	Headers any
	Body    any
}

// Func performs a call. init may be nil.
type Func func(ctx context.Context, res Resource, init *Init) (*http.Response, error)

// New returns a Func that performs calls with client.
func New(client *http.Client) Func {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, res Resource, init *Init) (*http.Response, error) {
		if init == nil {
			init = &Init{}
		}
		method := strings.ToUpper(init.Method)
		if method == "" {
			method = http.MethodGet
		}
		body, contentType, err := EncodeBody(init.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch: encode body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, method, res.Address(), body)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		ApplyHeaders(req.Header, init.Headers)
		if contentType != "" && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}
		return client.Do(req)
	}
}

// ApplyHeaders copies an http.Header or map[string]string into dst.
// Other types are ignored.
func ApplyHeaders(dst http.Header, headers any) {
	switch h := headers.(type) {
	case http.Header:
		for name, values := range h {
			for _, v := range values {
				dst.Add(name, v)
			}
		}
	case map[string]string:
		for name, v := range h {
			dst.Set(name, v)
		}
	}
}
