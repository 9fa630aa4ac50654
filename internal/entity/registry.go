package entity

import "sync"

// Registry is the live index of attached entities, keyed by unique ID and
// by device serial. The MQTT bridge reads it to render state payloads.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Entity
	bySerial map[string]map[string]*Entity // serial -> uniqueID -> entity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Entity),
		bySerial: make(map[string]map[string]*Entity),
	}
}

// Add indexes an entity.
func (r *Registry) Add(e *Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[e.UniqueID()] = e
	serial := e.Device().Serial()
	if r.bySerial[serial] == nil {
		r.bySerial[serial] = make(map[string]*Entity)
	}
	r.bySerial[serial][e.UniqueID()] = e
}

// Remove drops an entity from the index.
func (r *Registry) Remove(e *Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, e.UniqueID())
	serial := e.Device().Serial()
	if m := r.bySerial[serial]; m != nil {
		delete(m, e.UniqueID())
		if len(m) == 0 {
			delete(r.bySerial, serial)
		}
	}
}

// Get returns the entity with the given unique ID.
func (r *Registry) Get(uniqueID string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[uniqueID]
	return e, ok
}

// BySerial returns all entities of one device.
func (r *Registry) BySerial(serial string) []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.bySerial[serial]))
	for _, e := range r.bySerial[serial] {
		out = append(out, e)
	}
	return out
}

// All returns every indexed entity.
func (r *Registry) All() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	return out
}
