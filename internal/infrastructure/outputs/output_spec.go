package outputs

// OutputSpec describes an output instance to be created from configuration.
type OutputSpec struct {
	Type   string
	Title  string
	Config Config
}
