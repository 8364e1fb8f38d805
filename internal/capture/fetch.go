package capture

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/akave-ai/apicapture/internal/fetch"
	"github.com/akave-ai/apicapture/internal/model"
)

// WrapFetch returns a drop-in replacement for next that records every call
// outside the sink. next is kept as the fallback and never replaced.
func (i *Interceptor) WrapFetch(next fetch.Func) fetch.Func {
	return func(ctx context.Context, res fetch.Resource, init *fetch.Init) (*http.Response, error) {
		url := res.Address()
		if !i.ShouldCapture(url) {
			return next(ctx, res, init)
		}

		start := i.now()
		var opts fetch.Init
		if init != nil {
			opts = *init
		}
		method := strings.ToUpper(opts.Method)
		if method == "" {
			method = http.MethodGet
		}
		rec := model.Record{
			URL:            url,
			Method:         method,
			RequestHeaders: i.headers(opts.Headers),
			InitiatorType:  model.InitiatorFetch,
		}
		if hasPayload(method) && opts.Body != nil {
			rec.RequestBody = i.requestBody(opts.Body)
		}

		resp, err := next(ctx, res, init)
		rec.DurationMS = i.elapsed(start)
		if err != nil {
			rec.ResponseHeaders = map[string]string{}
			rec.ResponseBody = errorBody(err)
			i.emit(rec)
			return resp, err
		}

		rec.StatusCode = resp.StatusCode
		rec.ResponseHeaders = i.headers(resp.Header)
		rec.ResponseBody = i.responseBody(resp)
		i.emit(rec)
		return resp, nil
	}
}

// responseBody captures a textual response body without consuming it for the
// caller. At most maxBody+1 bytes are read up front; resp.Body is replaced by a
// reader that serves that prefix and then continues with the original body.
// Event streams are never read.
func (i *Interceptor) responseBody(resp *http.Response) any {
	return i.guard("response body", model.PlaceholderReadFailed, func() any {
		ct := resp.Header.Get("Content-Type")
		if !IsTextual(ct) || IsEventStream(ct) {
			return model.PlaceholderNonText
		}
		if resp.Body == nil {
			return nil
		}
		prefix, err := i.readPrefix(resp.Body)
		resp.Body = newReplayBody(prefix, err, resp.Body, resp.Body)
		if err != nil {
			return model.PlaceholderReadFailed
		}
		return i.prefixText(prefix)
	})
}

// readPrefix reads up to one byte past the capture limit, so an over-long
// body is known to be over-long without buffering the rest of it.
func (i *Interceptor) readPrefix(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, int64(i.maxBody)+1))
}

// prefixText parses a complete body; a cut one stays text and is truncated on emit.
func (i *Interceptor) prefixText(prefix []byte) any {
	if len(prefix) > i.maxBody {
		return string(prefix)
	}
	return ParseText(string(prefix))
}

// replayBody serves buffered bytes, then err if the buffering read failed,
// then whatever is left in rest. Close closes the underlying body.
type replayBody struct {
	r      *bytes.Reader
	err    error
	rest   io.Reader
	closer io.Closer
}

func newReplayBody(data []byte, err error, rest io.Reader, closer io.Closer) *replayBody {
	return &replayBody{r: bytes.NewReader(data), err: err, rest: rest, closer: closer}
}

func (b *replayBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != io.EOF {
		return n, err
	}
	if n > 0 {
		return n, nil
	}
	if b.err != nil {
		return 0, b.err
	}
	if b.rest != nil {
		return b.rest.Read(p)
	}
	return 0, io.EOF
}

func (b *replayBody) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}
