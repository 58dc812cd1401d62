package nodes

import "sync"

// Registry holds the active listener set. Reads vastly outnumber writes
// (every detection result walks the set, writes only happen on config
// reload) so a plain RWMutex over a slice is enough.
type Registry struct {
	mu        sync.RWMutex
	listeners []*ListenerConfig
}

func NewRegistry(listeners []*ListenerConfig) *Registry {
	return &Registry{listeners: listeners}
}

// Replace swaps in a new listener set atomically.
func (r *Registry) Replace(listeners []*ListenerConfig) {
	r.mu.Lock()
	r.listeners = listeners
	r.mu.Unlock()
}

// Snapshot returns the current listener set. Callers must not mutate it.
func (r *Registry) Snapshot() []*ListenerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listeners
}

// Len reports the number of active listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// FindListener resolves a detection-result field name to its listener.
// Match order is ID first, then name; first match wins so duplicate names
// behave deterministically.
func (r *Registry) FindListener(field string) (*ListenerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.listeners {
		if l.ID == field {
			return l, true
		}
	}
	for _, l := range r.listeners {
		if l.Name == field {
			return l, true
		}
	}
	return nil, false
}
