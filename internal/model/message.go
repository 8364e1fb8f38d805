package model

// Message type tags for the two hops between the interceptor and the sink.
const (
	// CaptureLogType tags envelopes broadcast on the page window.
	CaptureLogType = "API_CAPTURE_LOG"
	// CapturedRequestType tags messages on the privileged channel.
	CapturedRequestType = "CAPTURED_REQUEST"
)

// CaptureEnvelope is the window broadcast: {type: "API_CAPTURE_LOG", payload: record}.
type CaptureEnvelope struct {
	Type    string `json:"type"`
	Payload Record `json:"payload"`
}
