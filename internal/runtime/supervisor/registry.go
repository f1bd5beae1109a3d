package supervisor

import (
	"maps"
	"sync"
)

// Registry names the running supervisors so their counters can be reported.
// A nil *Registry ignores every call.
type Registry struct {
	mu   sync.RWMutex
	sups map[string]*Supervisor
}

func NewRegistry() *Registry { return &Registry{sups: map[string]*Supervisor{}} }

// Set registers sup under name, replacing any previous one.
func (r *Registry) Set(name string, sup *Supervisor) {
	if r == nil || sup == nil {
		return
	}
	r.mu.Lock()
	r.sups[name] = sup
	r.mu.Unlock()
}

func (r *Registry) Delete(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.sups, name)
	r.mu.Unlock()
}

// Snapshot copies the current name to supervisor mapping.
func (r *Registry) Snapshot() map[string]*Supervisor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.sups)
}
