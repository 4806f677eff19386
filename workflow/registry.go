package workflow

import (
	"sync"

	"github.com/adwhq/adwflow/types"
)

// Registry tracks in-flight runs for status query and cancellation. It is
// owned by an Engine instance, not a package-level global, so independent
// engines (and tests) never share state.
//
// Mutations are serialized per registry; concurrent runs of different ids
// never contend beyond the map lock.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*registryEntry
}

type registryEntry struct {
	run       *Run
	cancelled bool
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*registryEntry)}
}

// Add registers a newly started run.
func (r *Registry) Add(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = &registryEntry{run: run}
}

// Remove drops a run after it reaches a terminal state. The terminal
// snapshot lives on in the run store; the registry only tracks in-flight
// work.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, id)
}

// Update applies fn to a live run while holding the registry's write lock.
// Every executor mutation of a registered run goes through here so Get and
// List snapshots never observe a write in progress.
func (r *Registry) Update(run *Run, fn func(*Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(run)
}

// Get returns a snapshot of the run with the given id.
func (r *Registry) Get(id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.runs[id]
	if !ok {
		return nil, types.NewError(types.ErrRunNotFound, "run "+id+" not in registry")
	}
	return entry.run.Snapshot(), nil
}

// List returns snapshots of every in-flight run.
func (r *Registry) List() []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Run, 0, len(r.runs))
	for _, entry := range r.runs {
		out = append(out, entry.run.Snapshot())
	}
	return out
}

// Cancel marks a run cancelled. Cancellation is cooperative and coarse: an
// in-flight dispatch is not interrupted, but no further step starts and
// pollers see the flag immediately.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[id]
	if !ok {
		return types.NewError(types.ErrRunNotFound, "run "+id+" not in registry")
	}
	entry.cancelled = true
	return nil
}

// IsCancelled reports whether Cancel has been called for the run.
func (r *Registry) IsCancelled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.runs[id]
	return ok && entry.cancelled
}
