// Package registry tracks worker liveness for the orchestrator. A worker is
// active while its most recent heartbeat is younger than the TTL; expiry is
// evaluated lazily on read, so a silent worker simply stops being returned.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/snowfort-db/snowfort/internal/protocol"
)

// DefaultTTL is how long a registration stays active without a heartbeat.
const DefaultTTL = 45 * time.Second

// ErrNotRegistered is returned by Heartbeat for an unknown worker id. The
// HTTP layer maps it to a 404 so the worker re-registers.
var ErrNotRegistered = errors.New("worker not registered")

type entry struct {
	baseURL  string
	load     float64
	lastSeen time.Time
}

// Registry is a mutex-guarded map of worker registrations.
type Registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	workers map[string]*entry

	// now is swapped in tests to control expiry.
	now func() time.Time
}

// New returns a registry with the given TTL; ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		ttl:     ttl,
		workers: make(map[string]*entry),
		now:     time.Now,
	}
}

// Upsert registers a worker or refreshes an existing registration.
func (r *Registry) Upsert(workerID, baseURL string, load float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[workerID] = &entry{
		baseURL:  baseURL,
		load:     load,
		lastSeen: r.now(),
	}
}

// Heartbeat refreshes the last-seen timestamp and load of a registered
// worker, and the base URL when one is given. An expired registration still
// counts as registered until pruned.
func (r *Registry) Heartbeat(workerID, baseURL string, load float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return ErrNotRegistered
	}
	if baseURL != "" {
		w.baseURL = baseURL
	}
	w.load = load
	w.lastSeen = r.now()
	return nil
}

// ListActive returns the workers whose last heartbeat is within the TTL,
// sorted by worker id for stable assignment. Expired entries are pruned.
func (r *Registry) ListActive() []protocol.WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	active := make([]protocol.WorkerInfo, 0, len(r.workers))
	for id, w := range r.workers {
		if w.lastSeen.Before(cutoff) {
			delete(r.workers, id)
			continue
		}
		active = append(active, protocol.WorkerInfo{
			WorkerID: id,
			BaseURL:  w.baseURL,
			Load:     w.load,
			LastSeen: w.lastSeen,
		})
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].WorkerID < active[j].WorkerID
	})
	return active
}

// Len reports the number of registrations, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}
