package outputs

import "time"

// Config is a key-value map for output-type-specific configuration.
// The backend passes it when creating an output; implementations interpret it.
type Config map[string]any

// String returns the string value for key, or def when missing or empty.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns an integer value for key. JSON numbers arrive as float64.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// Duration parses a duration string such as "5s".
func (c Config) Duration(key string, def time.Duration) time.Duration {
	s, ok := c[key].(string)
	if !ok || s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
