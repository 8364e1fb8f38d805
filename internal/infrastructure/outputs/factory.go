package outputs

// Factory creates a RecordOutput from config.
// Each output type (http, o3, log) implements and registers a Factory.
// ConfigSpec declares which configuration fields this output type needs.
type Factory interface {
	Name() string
	ConfigSpec() OutputTypeInfo
	Create(cfg Config) (RecordOutput, error)
}
