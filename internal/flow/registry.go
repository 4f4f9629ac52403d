package flow

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр flows по имени.
//
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]*Definition
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		flows: make(map[string]*Definition),
	}
}

// Register регистрирует flow.
// Если flow с таким именем уже есть, он будет перезаписан.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[def.Name()] = def
	return nil
}

// MustRegister как Register, но паникует на невалидном определении.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get возвращает flow по имени.
// Возвращает ErrFlowNotFound, если flow не найден.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.flows[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}
	return def, nil
}

// Has проверяет, зарегистрирован ли flow.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.flows[name]
	return exists
}

// Names возвращает отсортированные имена flows.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All возвращает определения в порядке имён.
func (r *Registry) All() []*Definition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.flows[name])
	}
	return defs
}
