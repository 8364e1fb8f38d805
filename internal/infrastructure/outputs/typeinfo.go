package outputs

// ConfigField describes one configuration field for an output type.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "bool", "duration"
	Required    bool   `json:"required"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// OutputTypeInfo describes an output type and the configuration it expects.
// Returned by Factory.ConfigSpec() and exposed via GET /outputs/info and GET /outputs/types/:type.
type OutputTypeInfo struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Fields      []ConfigField `json:"fields"`
}
