package lifecycle

import (
	"io"
	"sort"
	"sync"

	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

// Registration is an active entry.
type Registration struct {
	Entry  entry.Entry
	Handle coordinator.Handle

	// Conn is the handle's device connection, nil when the handle has none.
	Conn io.Closer

	removeListener func()
}

// Registry holds the active registrations, at most one per entry id.
type Registry struct {
	mu   sync.RWMutex
	regs map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{regs: make(map[string]*Registration)}
}

// Insert adds reg and returns the new size. It fails with ErrAlreadyActive
// if the entry id is already present.
func (r *Registry) Insert(reg *Registration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[reg.Entry.ID]; ok {
		return len(r.regs), ErrAlreadyActive
	}
	r.regs[reg.Entry.ID] = reg
	return len(r.regs), nil
}

// Remove deletes an entry and returns the removed registration (nil if the
// entry was absent) and the new size.
func (r *Registry) Remove(id string) (*Registration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return nil, len(r.regs)
	}
	delete(r.regs, id)
	return reg, len(r.regs)
}

// Get returns the registration of an entry.
func (r *Registry) Get(id string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[id]
	return reg, ok
}

// Has reports whether an entry is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Handle returns the coordinator of an active entry.
func (r *Registry) Handle(id string) (coordinator.Handle, bool) {
	reg, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return reg.Handle, true
}

// Len returns the number of active entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

// IDs returns the active entry ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.regs))
	for id := range r.regs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
