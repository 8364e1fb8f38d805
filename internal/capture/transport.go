package capture

import (
	"net/http"
	"strings"

	"github.com/akave-ai/apicapture/internal/model"
)

// Transport returns a RoundTripper that records every exchange made through
// next, for use with any http.Client. Records carry the fetch initiator.
func (i *Interceptor) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &captureTransport{next: next, i: i}
}

type captureTransport struct {
	next http.RoundTripper
	i    *Interceptor
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	if !t.i.ShouldCapture(url) {
		return t.next.RoundTrip(req)
	}

	start := t.i.now()
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	rec := model.Record{
		URL:            url,
		Method:         method,
		RequestHeaders: t.i.headers(req.Header),
		InitiatorType:  model.InitiatorFetch,
	}
	out := req
	if hasPayload(method) && req.Body != nil && req.Body != http.NoBody {
		rec.RequestBody, out = t.i.streamedRequestBody(req)
	}

	resp, err := t.next.RoundTrip(out)
	rec.DurationMS = t.i.elapsed(start)
	if err != nil {
		rec.ResponseHeaders = map[string]string{}
		rec.ResponseBody = errorBody(err)
		t.i.emit(rec)
		return resp, err
	}

	rec.StatusCode = resp.StatusCode
	rec.ResponseHeaders = t.i.headers(resp.Header)
	rec.ResponseBody = t.i.responseBody(resp)
	t.i.emit(rec)
	return resp, nil
}

// streamedRequestBody captures a request body by its declared content type.
// Form and binary bodies are never read. Text bodies are read up to the
// capture limit and the returned request, a clone of req, replays that prefix
// followed by the unread remainder.
func (i *Interceptor) streamedRequestBody(req *http.Request) (any, *http.Request) {
	kind := kindForContentType(req.Header.Get("Content-Type"))
	switch kind {
	case BodyForm:
		return model.PlaceholderFormData, req
	case BodyBinary:
		return model.PlaceholderBinary, req
	}

	if req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			data, err := i.readPrefix(rc)
			rc.Close()
			if err == nil {
				return i.textBody(kind, data), req
			}
		}
	}

	data, err := i.readPrefix(req.Body)
	out := req.Clone(req.Context())
	out.Body = newReplayBody(data, err, req.Body, req.Body)
	if err != nil {
		return model.PlaceholderReadFailed, out
	}
	return i.textBody(kind, data), out
}

func (i *Interceptor) textBody(kind BodyKind, data []byte) any {
	return i.guard("request body", model.PlaceholderBinary, func() any {
		if kind == BodyURLEncoded {
			return string(data)
		}
		return i.prefixText(data)
	})
}
