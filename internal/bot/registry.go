package bot

import "sync"

// Registry collects modules in registration order. The bot loads its
// module set from here at startup, so command precedence follows import
// order in cmd/otoha.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make([]Module, 0),
	}
}

// Register appends a module to the registry.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
}

// Modules returns a snapshot of all registered modules.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make([]Module, len(r.modules))
	copy(result, r.modules)
	return result
}

// Global registry filled by module package init functions; cmd/otoha
// selects the module set through blank imports.
var globalRegistry = NewRegistry()

// Register adds a module to the global registry. Module packages call
// this from init().
func Register(m Module) {
	globalRegistry.Register(m)
}

// Modules returns all modules from the global registry.
func Modules() []Module {
	return globalRegistry.Modules()
}

// ResetGlobalRegistry resets the global registry between tests.
func ResetGlobalRegistry() {
	globalRegistry = NewRegistry()
}
