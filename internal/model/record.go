package model

// InitiatorType identifies which call mechanism produced a record.
type InitiatorType string

const (
	InitiatorFetch InitiatorType = "fetch"
	InitiatorXHR   InitiatorType = "xhr"
)

// Record is one observed network call. It is built once when the call settles
// and is never mutated afterwards; relays and outputs pass it on verbatim.
//
// RequestBody and ResponseBody hold either a json.RawMessage (parsed structured
// payload), a plain string (raw text or a placeholder marker) or nil.
// StatusCode is 0 when the call never reached a server.
type Record struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestBody     any               `json:"request_body"`
	StatusCode      int               `json:"status_code"`
	ResponseHeaders map[string]string `json:"response_headers"`
	ResponseBody    any               `json:"response_body"`
	DurationMS      int64             `json:"duration_ms"`
	InitiatorType   InitiatorType     `json:"initiator_type"`
}

// Placeholder markers substituted for bodies that are not captured.
const (
	PlaceholderFormData   = "[FormData - not captured]"
	PlaceholderBinary     = "[Binary data - not captured]"
	PlaceholderNonText    = "[Non-text content - not captured]"
	PlaceholderReadFailed = "[Failed to read response body]"

	// TruncationMarker is appended to bodies cut at the size ceiling.
	TruncationMarker = "... [TRUNCATED]"
)
