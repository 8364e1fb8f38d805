package outputs

import (
	"fmt"
	"sync"
)

// GlobalRegistry is populated by output packages in init().
var GlobalRegistry = NewRegistry()

// Registry holds registered output factories. The backend uses it to create outputs.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for an output type.
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.Name()] = factory
}

// Create builds a RecordOutput for the given type and config.
func (r *Registry) Create(name string, cfg Config) (RecordOutput, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown output type: %s", name)
	}
	return factory.Create(cfg)
}

// ValidateConfig runs the factory's optional ValidateConfig before create. Returns nil if type unknown or no validator.
func (r *Registry) ValidateConfig(typeName string, cfg Config) error {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if v, ok := factory.(interface{ ValidateConfig(Config) error }); ok {
		return v.ValidateConfig(cfg)
	}
	return nil
}

// ListRegistered returns all registered output type names.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// GetTypeInfo returns the config spec for the given output type. ok is false if the type is not registered.
func (r *Registry) GetTypeInfo(name string) (info OutputTypeInfo, ok bool) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return OutputTypeInfo{}, false
	}
	return factory.ConfigSpec(), true
}

// AllTypesInfo returns config specs for all registered output types.
func (r *Registry) AllTypesInfo() []OutputTypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]OutputTypeInfo, 0, len(r.factories))
	for _, factory := range r.factories {
		out = append(out, factory.ConfigSpec())
	}
	return out
}
