// Package xhr implements an event-driven HTTP call object: state is built up
// through Open and SetRequestHeader, Send dispatches asynchronously, and
// load-end listeners fire once the call settles.
package xhr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/akave-ai/apicapture/internal/fetch"
)

type State int

const (
	Unsent State = iota
	Opened
	Sent
	Done
)

var (
	ErrInvalidState = errors.New("xhr: invalid state")
	ErrAborted      = errors.New("xhr: aborted")
)

var lastID atomic.Uint64

// Request is a single call object. It can be reopened once done.
type Request struct {
	id     uint64
	client *http.Client

	mu       sync.Mutex
	state    State
	method   string
	url      string
	header   http.Header
	status   int
	respHdr  http.Header
	respText string
	err      error
	cancel   context.CancelFunc
	aborted  bool
	done     chan struct{}
	loadend  []func()
}

// New returns an unsent request that dispatches through client.
func New(client *http.Client) *Request {
	if client == nil {
		client = http.DefaultClient
	}
	return &Request{
		id:     lastID.Add(1),
		client: client,
		done:   make(chan struct{}),
	}
}

// ID is unique per Request within the process.
func (r *Request) ID() uint64 { return r.id }

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Open prepares the request. It resets any previous response state.
func (r *Request) Open(method, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Sent {
		return fmt.Errorf("%w: open while in flight", ErrInvalidState)
	}
	if r.state == Done {
		r.done = make(chan struct{})
	}
	r.state = Opened
	r.method = strings.ToUpper(method)
	r.url = url
	r.header = make(http.Header)
	r.status = 0
	r.respHdr = nil
	r.respText = ""
	r.err = nil
	r.aborted = false
	return nil
}

// SetRequestHeader adds a header; repeated names accumulate like a browser.
func (r *Request) SetRequestHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Opened {
		return fmt.Errorf("%w: set header before open or after send", ErrInvalidState)
	}
	r.header.Add(name, value)
	return nil
}

// OnLoadEnd registers fn to run when the call settles, whether it succeeded,
// failed or was aborted.
func (r *Request) OnLoadEnd(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadend = append(r.loadend, fn)
}

// Send dispatches the request in the background. An error is returned only
// when the call could not be started; in that case no listener fires.
func (r *Request) Send(body any) error {
	r.mu.Lock()
	if r.state != Opened {
		r.mu.Unlock()
		return fmt.Errorf("%w: send before open", ErrInvalidState)
	}
	reader, contentType, err := fetch.EncodeBody(body)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("xhr: encode body: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, reader)
	if err != nil {
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("xhr: %w", err)
	}
	req.Header = r.header.Clone()
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	r.state = Sent
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(req)
	return nil
}

// Abort cancels an in-flight call. The call settles with status 0.
func (r *Request) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Sent:
		r.aborted = true
		r.cancel()
	case Opened:
		r.state = Unsent
	}
}

func (r *Request) run(req *http.Request) {
	status, hdr, text, err := r.do(req)

	r.mu.Lock()
	if r.aborted {
		status, hdr, text, err = 0, nil, "", ErrAborted
	}
	r.status = status
	r.respHdr = hdr
	r.respText = text
	r.err = err
	r.state = Done
	r.cancel()
	listeners := make([]func(), len(r.loadend))
	copy(listeners, r.loadend)
	done := r.done
	r.mu.Unlock()

	close(done)
	for _, fn := range listeners {
		fn()
	}
}

func (r *Request) do(req *http.Request) (int, http.Header, string, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode, resp.Header, string(body), nil
}

// Done is closed when the current call settles.
func (r *Request) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err is the network error of a settled call, nil on success.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Request) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Request) ResponseText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respText
}

// ResponseHeader returns the combined value of the named response header.
func (r *Request) ResponseHeader(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.respHdr == nil {
		return ""
	}
	return strings.Join(r.respHdr.Values(name), ", ")
}

// AllResponseHeaders returns the response headers as CRLF separated
// "name: value" lines with lower-cased names, sorted by name.
func (r *Request) AllResponseHeaders() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.respHdr) == 0 {
		return ""
	}
	names := make([]string, 0, len(r.respHdr))
	for name := range r.respHdr {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(strings.ToLower(name))
		b.WriteString(": ")
		b.WriteString(strings.Join(r.respHdr[name], ", "))
		b.WriteString("\r\n")
	}
	return b.String()
}
