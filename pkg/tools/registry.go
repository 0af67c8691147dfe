package tools

import (
	"sync"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/pkg/errors"
)

// Registry manages available tools with thread-safe operations. The
// dispatcher looks tools up by name; the orchestrator ships the descriptors
// to the backend.
type Registry interface {
	Register(def *Definition) error
	Get(name string) (*Definition, error)
	List() []*Definition
	Descriptors() ([]turns.ToolDescriptor, error)
}

// InMemoryRegistry is a mutex-guarded map-backed Registry.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{tools: make(map[string]*Definition)}
}

func (r *InMemoryRegistry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return errors.New("tool definition must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return errors.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

func (r *InMemoryRegistry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, exists := r.tools[name]
	if !exists {
		return nil, errors.Errorf("tool not found: %s", name)
	}
	return def, nil
}

func (r *InMemoryRegistry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def)
	}
	return out
}

func (r *InMemoryRegistry) Descriptors() ([]turns.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]turns.ToolDescriptor, 0, len(r.tools))
	for _, def := range r.tools {
		desc, err := def.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

var _ Registry = (*InMemoryRegistry)(nil)
