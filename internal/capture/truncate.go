package capture

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/akave-ai/apicapture/internal/model"
)

// Truncate bounds a captured body to limit bytes. Strings are measured as-is,
// anything else by its JSON encoding. Values within the bound are returned
// unchanged; longer ones become the first limit bytes, backed off to a rune
// boundary, followed by model.TruncationMarker.
func Truncate(v any, limit int) any {
	if v == nil || limit <= 0 {
		return v
	}
	var s string
	switch b := v.(type) {
	case string:
		s = b
	case json.RawMessage:
		s = string(b)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return model.PlaceholderBinary
		}
		s = string(raw)
	}
	if len(s) <= limit {
		return v
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + model.TruncationMarker
}
