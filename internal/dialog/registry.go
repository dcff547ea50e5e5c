package dialog

import (
	"fmt"
	"sync"
)

// Registry is the in-memory index of live dialogs, keyed by "root/self".
// Back-references between dialogs are by ID only and resolved through the
// registry on demand, so the graph never holds pointer cycles.
type Registry struct {
	mu      sync.RWMutex
	dialogs map[string]*Dialog
	// Type B subdialogs, resumable by {root, targetAgent, tellaskSession}.
	registered map[string]ID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		dialogs:    make(map[string]*Dialog),
		registered: make(map[string]ID),
	}
}

func sessionKey(root ID, targetAgentID, tellaskSession string) string {
	return root.Root + "\x00" + targetAgentID + "\x00" + tellaskSession
}

// Add inserts a dialog. Returns an error if the key is already taken.
func (r *Registry) Add(d *Dialog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := d.ID.Key()
	if _, ok := r.dialogs[key]; ok {
		return fmt.Errorf("dialog %s already registered", key)
	}
	r.dialogs[key] = d
	return nil
}

// Get resolves a dialog by ID.
func (r *Registry) Get(id ID) (*Dialog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dialogs[id.Key()]
	return d, ok
}

// GetOrAdd returns the existing dialog for id or inserts the one built by
// mk. The build runs under the registry lock; keep it cheap.
func (r *Registry) GetOrAdd(id ID, mk func() *Dialog) *Dialog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dialogs[id.Key()]; ok {
		return d
	}
	d := mk()
	r.dialogs[id.Key()] = d
	return d
}

// Remove drops a dialog and any session registration pointing at it.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dialogs, id.Key())
	for k, v := range r.registered {
		if v == id {
			delete(r.registered, k)
		}
	}
}

// Roots returns all root dialogs currently in memory.
func (r *Registry) Roots() []*Dialog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Dialog
	for _, d := range r.dialogs {
		if d.IsRoot() {
			out = append(out, d)
		}
	}
	return out
}

// RegisterSubdialog records a Type B subdialog as resumable under
// {root, targetAgent, tellaskSession}.
func (r *Registry) RegisterSubdialog(root ID, targetAgentID, tellaskSession string, sub ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[sessionKey(root, targetAgentID, tellaskSession)] = sub
}

// LookupRegistered resolves a registered subdialog by target agent and
// tellask session within a root.
func (r *Registry) LookupRegistered(root ID, targetAgentID, tellaskSession string) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.registered[sessionKey(root, targetAgentID, tellaskSession)]
	return id, ok
}
