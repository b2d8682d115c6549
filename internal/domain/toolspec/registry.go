package toolspec

import (
	"fmt"
	"sync"
)

// Registry holds name-unique ToolSpecs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolSpec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolSpec)}
}

// Register adds spec under spec.Name. Re-registration of an existing name
// fails: name uniqueness is enforced for the lifetime of the registry.
// If spec.Safety is unset, it is inferred from the tool's name via
// DefaultSafety so that callers need not hand-classify every tool.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("toolspec: tool name must not be empty")
	}
	if spec.Safety == "" {
		spec.Safety = DefaultSafety(spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("toolspec: tool %q is already registered", spec.Name)
	}
	r.tools[spec.Name] = spec
	return nil
}

// Lookup returns the ToolSpec registered under name, if any.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.tools[name]
	return spec, ok
}

// List returns every registered ToolSpec, used by the intent router's
// semantic tier to build its candidate set.
func (r *Registry) List() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.tools))
	for _, spec := range r.tools {
		out = append(out, spec)
	}
	return out
}
