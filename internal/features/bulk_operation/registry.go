package bulk_operation

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps operation types to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]ItemExecutor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]ItemExecutor)}
}

// NewRegistryWith registers every executor, failing on the first duplicate.
func NewRegistryWith(executors ...ItemExecutor) (*Registry, error) {
	r := NewRegistry()
	for _, e := range executors {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(e ItemExecutor) error {
	if e == nil {
		return fmt.Errorf("nil executor")
	}
	t := e.Definition().Type
	if t == "" {
		return fmt.Errorf("executor Definition().Type is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[t]; exists {
		return fmt.Errorf("executor already registered for operation_type=%s", t)
	}
	r.executors[t] = e
	return nil
}

func (r *Registry) Get(operationType string) (ItemExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[operationType]
	return e, ok
}

// Inverse returns the executor that undoes operationType.
func (r *Registry) Inverse(operationType string) (ItemExecutor, error) {
	e, ok := r.Get(operationType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOperationType, operationType)
	}
	def := e.Definition()
	if !def.IsReversible() {
		return nil, fmt.Errorf("%w: %s has no inverse", ErrNotReversible, operationType)
	}
	inv, ok := r.Get(def.InverseType)
	if !ok {
		return nil, fmt.Errorf("%w: inverse %s of %s is not registered", ErrNotReversible, def.InverseType, operationType)
	}
	return inv, nil
}

// Definitions lists every registered definition sorted by type.
func (r *Registry) Definitions() []OperationDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]OperationDefinition, 0, len(r.executors))
	for _, e := range r.executors {
		defs = append(defs, e.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}
