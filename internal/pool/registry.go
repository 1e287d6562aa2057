package pool

import (
	"sync"
	"time"
)

// Registry holds the fixed, ordered set of backends provisioned at
// startup. The registration order defines the round-robin rotation
// order. The rotation cursor and all health-state mutation share the
// registry lock, so a scan-then-advance selection is atomic with
// respect to concurrent markings and other selections.
type Registry struct {
	mutex            sync.Mutex
	backends         []*Backend
	cursor           int
	failureThreshold int
}

// NewRegistry creates a Registry over the given backends. The failure
// threshold is the number of consecutive failed markings after which a
// backend is excluded from rotation; values below 1 are clamped to 1.
func NewRegistry(backends []*Backend, failureThreshold int) *Registry {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &Registry{
		backends:         backends,
		failureThreshold: failureThreshold,
	}
}

// Len returns the fixed pool size.
func (r *Registry) Len() int {
	return len(r.backends)
}

// List returns a snapshot copy of the backend sequence in rotation
// order. The descriptors themselves are shared, not copied; health
// reads through them may trail concurrent writers, which the
// dispatcher's retry loop tolerates.
func (r *Registry) List() []*Backend {
	out := make([]*Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Get returns the backend at the given rotation index.
func (r *Registry) Get(index int) *Backend {
	return r.backends[index]
}

// Mark records the outcome of a health probe or a live forwarding
// attempt for the backend at index. Returns true if the backend's
// health status changed.
func (r *Registry) Mark(index int, success bool, now time.Time) (changed bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if index < 0 || index >= len(r.backends) {
		return false
	}
	return r.backends[index].mark(success, now, r.failureThreshold)
}

// Select returns the index of the next healthy backend in rotation
// order, skipping indices in exclude, or ok=false if a full rotation
// yields no candidate. The cursor advances past the returned index so
// unrelated selections continue the rotation fairly. Select never
// blocks: an empty pool is reported immediately.
func (r *Registry) Select(exclude map[int]bool) (index int, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := len(r.backends)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		if exclude[idx] {
			continue
		}
		if !r.backends[idx].IsHealthy() {
			continue
		}
		r.cursor = (idx + 1) % n
		return idx, true
	}

	return 0, false
}
