package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrTypeNotFound  = errors.New("node type not found")
	ErrDuplicateType = errors.New("node type already registered")
)

// Registry maps node type names to factories. It is populated at process
// start and read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(typeName string, f Factory) error {
	if typeName == "" || f == nil {
		return fmt.Errorf("register node type: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typeName]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typeName)
	}
	r.factories[typeName] = f
	return nil
}

func (r *Registry) MustRegister(typeName string, f Factory) {
	if err := r.Register(typeName, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeName]
	return ok
}

// Create builds one behavior for p.Element.NodeType. Unknown types return
// ErrTypeNotFound; constructor failures are returned wrapped as-is.
func (r *Registry) Create(p Params) (Behavior, error) {
	r.mu.RLock()
	f, ok := r.factories[p.Element.NodeType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, p.Element.NodeType)
	}
	b, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("create %s node %s: %w", p.Element.NodeType, p.Element.ElementID, err)
	}
	return b, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
