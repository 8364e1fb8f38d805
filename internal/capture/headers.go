package capture

import (
	"net/http"
	"strings"
)

// NormalizeHeaders flattens an http.Header or a map[string]string into a
// single-valued map. http.Header names are lower-cased and repeated values
// joined with ", ". Anything else yields an empty map.
func NormalizeHeaders(h any) map[string]string {
	switch v := h.(type) {
	case http.Header:
		return FlattenHeader(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for name, value := range v {
			out[name] = value
		}
		return out
	default:
		return map[string]string{}
	}
}

func FlattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		setHeader(out, strings.ToLower(name), strings.Join(values, ", "))
	}
	return out
}

// ParseRawHeaders parses CRLF separated "name: value" lines. Each line is
// split on its first ": "; lines without one are skipped.
func ParseRawHeaders(raw string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(raw, "\r\n") {
		name, value, ok := strings.Cut(line, ": ")
		if !ok || name == "" {
			continue
		}
		setHeader(out, name, value)
	}
	return out
}

// setHeader stores name=value, replacing any entry whose name differs only
// in case. The last write wins, including its spelling of the name.
func setHeader(m map[string]string, name, value string) {
	for existing := range m {
		if existing != name && strings.EqualFold(existing, name) {
			delete(m, existing)
		}
	}
	m[name] = value
}
