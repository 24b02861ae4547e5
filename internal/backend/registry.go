package backend

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/searchmap/internal/failure"
)

// Factory creates a backend from its properties.
type Factory func(name string, props PropertySource, ctx *BuildContext) (Backend, error)

// Registry maps backend type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory for a backend type.
func (r *Registry) Register(typeName string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = f
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// CreateBackend creates the named backend from the factory its "type" selects.
func (r *Registry) CreateBackend(name string, props PropertySource, ctx *BuildContext) (Backend, error) {
	typeName := props.String(KeyType, "")
	if typeName == "" {
		return nil, failure.WithContext(ErrMissingType, failure.Backend(name))
	}
	r.mu.RLock()
	f, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, failure.WithContext(
			fmt.Errorf("%w %q (available: %s)", ErrUnknownType, typeName, strings.Join(r.Types(), ", ")),
			failure.Backend(name))
	}
	b, err := f(name, props, ctx.WithDefaults())
	if err != nil {
		return nil, failure.WithContext(err, failure.Backend(name))
	}
	return b, nil
}
