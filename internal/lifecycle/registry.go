package lifecycle

import (
	"sort"
	"sync"
	"time"

	"ephemcp/internal/api"
)

// entry is the registry record of one server.
type entry struct {
	op sync.Mutex

	mu         sync.RWMutex
	handle     api.ServerHandle
	cause      error
	terminalAt time.Time
}

// failure returns the error that moved the entry to Failed.
func (e *entry) failure() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cause
}

func (e *entry) snapshot() api.ServerHandle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyHandle(e.handle)
}

func (e *entry) state() api.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle.State
}

func (e *entry) update(fn func(h *api.ServerHandle)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.handle)
}

// registry maps server ids to entries. It also indexes the Job names in use
// so two entries never share an object pair.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	objects map[string]string
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*entry),
		objects: make(map[string]string),
	}
}

// insert adds e unless its id or Job name is already taken.
func (r *registry) insert(e *entry) bool {
	h := e.snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[h.ID]; exists {
		return false
	}
	if _, exists := r.objects[h.ComputeUnitName]; exists {
		return false
	}
	r.entries[h.ID] = e
	r.objects[h.ComputeUnitName] = h.ID
	return true
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	delete(r.objects, e.snapshot().ComputeUnitName)
	delete(r.entries, id)
}

// all returns the entries ordered by creation time, then id.
func (r *registry) all() []*entry {
	r.mu.RLock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].snapshot(), out[j].snapshot()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func copyHandle(h api.ServerHandle) api.ServerHandle {
	out := h
	out.Spec = copySpec(h.Spec)
	if h.Endpoint != nil {
		ep := *h.Endpoint
		out.Endpoint = &ep
	}
	return out
}

func copySpec(s api.ServerSpec) api.ServerSpec {
	out := s
	out.Command = append([]string(nil), s.Command...)
	out.Args = append([]string(nil), s.Args...)
	if s.Env != nil {
		out.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			out.Env[k] = v
		}
	}
	if s.Resources != nil {
		res := api.Resources{
			Requests: copyStrings(s.Resources.Requests),
			Limits:   copyStrings(s.Resources.Limits),
		}
		out.Resources = &res
	}
	if s.Runtime != nil {
		rt := *s.Runtime
		out.Runtime = &rt
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
