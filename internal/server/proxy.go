package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ProxyPrefix is where capturing reverse proxies are mounted.
const ProxyPrefix = "/proxy"

// ProxyDispatcher routes /proxy/<name>/<path> to the reverse proxy registered for name.
// Every exchange goes through the configured transport, so each one is captured.
type ProxyDispatcher struct {
	mu      sync.RWMutex
	proxies map[string]*httputil.ReverseProxy
	targets map[string]string
	log     zerolog.Logger
}

// NewProxyDispatcher returns an empty ProxyDispatcher.
func NewProxyDispatcher(logger zerolog.Logger) *ProxyDispatcher {
	return &ProxyDispatcher{
		proxies: make(map[string]*httputil.ReverseProxy),
		targets: make(map[string]string),
		log:     logger.With().Str("component", "proxy").Logger(),
	}
}

// Mount registers a reverse proxy for name that forwards to target using transport.
func (d *ProxyDispatcher) Mount(name string, target *url.URL, transport http.RoundTripper) {
	name = strings.Trim(name, "/")
	prefix := ProxyPrefix + "/" + name
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			rest := strings.TrimPrefix(pr.In.URL.Path, prefix)
			if rest == "" {
				rest = "/"
			}
			pr.Out.URL.Path = rest
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d.log.Warn().Err(err).Str("target", name).Str("path", r.URL.Path).Msg("upstream request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.proxies[name] = rp
	d.targets[name] = target.String()
}

// Unmount removes the proxy for name.
func (d *ProxyDispatcher) Unmount(name string) {
	name = strings.Trim(name, "/")
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.proxies, name)
	delete(d.targets, name)
}

// Targets returns name -> upstream URL for every mounted proxy.
func (d *ProxyDispatcher) Targets() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.targets))
	for k, v := range d.targets {
		out[k] = v
	}
	return out
}

// Names returns the mounted proxy names, sorted.
func (d *ProxyDispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.proxies))
	for name := range d.proxies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP strips the /proxy prefix and dispatches on the first path segment.
func (d *ProxyDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, ProxyPrefix)
	path = strings.TrimPrefix(path, "/")
	name, _, _ := strings.Cut(path, "/")

	d.mu.RLock()
	rp, ok := d.proxies[name]
	d.mu.RUnlock()
	if !ok || name == "" {
		http.NotFound(w, r)
		return
	}
	rp.ServeHTTP(w, r)
}
