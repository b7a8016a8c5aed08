package jobs

import (
	"sort"
	"sync"
	"time"
)

// registryEntry is the in-memory proof that a job's worker is alive
type registryEntry struct {
	token     *CancelToken
	startedAt time.Time
}

// Registry maps job ids to the cancellation token of their live worker.
// It is process-local and starts empty; it is never rebuilt from storage.
// Every method holds the single mutex for its whole read-modify-write and
// never across a stage function call.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Register inserts a fresh token for jobID. It fails with ErrAlreadyActive
// when an entry already exists.
func (r *Registry) Register(jobID string) (*CancelToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[jobID]; exists {
		return nil, ErrAlreadyActive
	}

	token := NewCancelToken()
	r.entries[jobID] = &registryEntry{
		token:     token,
		startedAt: time.Now(),
	}
	return token, nil
}

// SignalCancel sets the token of jobID if an entry exists and reports
// whether one was found. The entry stays registered.
func (r *Registry) SignalCancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[jobID]
	if !exists {
		return false
	}
	entry.token.Set()
	return true
}

// CancelAndRemove sets the token of jobID and removes the entry in one step.
// It reports whether an active entry was found.
func (r *Registry) CancelAndRemove(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[jobID]
	if !exists {
		return false
	}
	entry.token.Set()
	delete(r.entries, jobID)
	return true
}

// Unregister removes jobID. Safe to call when absent.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, jobID)
}

// Release removes jobID only while the entry still holds token, so a worker
// from an earlier run cannot remove the entry of a restarted run.
func (r *Registry) Release(jobID string, token *CancelToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[jobID]
	if !exists || entry.token != token {
		return false
	}
	delete(r.entries, jobID)
	return true
}

// IsActive reports whether jobID has a live worker
func (r *Registry) IsActive(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.entries[jobID]
	return exists
}

// ActiveIDs returns the ids of all live workers, sorted
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SignalAll sets every registered token and returns how many were set
func (r *Registry) SignalAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		entry.token.Set()
	}
	return len(r.entries)
}

// Len returns the number of registered entries
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
