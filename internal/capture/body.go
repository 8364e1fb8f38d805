package capture

import (
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/akave-ai/apicapture/internal/model"
)

// BodyKind is the shape of an outgoing call body.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyText
	BodyForm
	BodyURLEncoded
	BodyBinary
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyText:
		return "text"
	case BodyForm:
		return "form"
	case BodyURLEncoded:
		return "urlencoded"
	case BodyBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Body is a classified request body. Text is only set for BodyText and
// BodyURLEncoded.
type Body struct {
	Kind BodyKind
	Text string
}

// ClassifyBody maps every possible body value to exactly one kind.
func ClassifyBody(v any) Body {
	switch b := v.(type) {
	case nil:
		return Body{Kind: BodyNone}
	case string:
		if b == "" {
			return Body{Kind: BodyNone}
		}
		return Body{Kind: BodyText, Text: b}
	case *multipart.Form:
		if b == nil {
			return Body{Kind: BodyNone}
		}
		return Body{Kind: BodyForm}
	case url.Values:
		return Body{Kind: BodyURLEncoded, Text: b.Encode()}
	default:
		return Body{Kind: BodyBinary}
	}
}

// Captured is the value recorded for the body.
func (b Body) Captured() any {
	switch b.Kind {
	case BodyText:
		return ParseText(b.Text)
	case BodyForm:
		return model.PlaceholderFormData
	case BodyURLEncoded:
		return b.Text
	case BodyBinary:
		return model.PlaceholderBinary
	default:
		return nil
	}
}

// ParseText returns s as structured JSON when it parses, otherwise s itself.
// Empty text yields nil.
func ParseText(s string) any {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

// IsTextual reports whether a declared content type is captured as text.
func IsTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "text/")
}

// IsEventStream reports a server-sent event stream, which has no end to wait for.
func IsEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/event-stream")
	}
	return mediaType == "text/event-stream"
}

// kindForContentType classifies a streamed request body by its declared type.
func kindForContentType(contentType string) BodyKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mediaType == "multipart/form-data":
		return BodyForm
	case mediaType == "application/x-www-form-urlencoded":
		return BodyURLEncoded
	case IsTextual(mediaType):
		return BodyText
	default:
		return BodyBinary
	}
}

// hasPayload reports whether method conventionally carries a request body.
func hasPayload(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	default:
		return false
	}
}
