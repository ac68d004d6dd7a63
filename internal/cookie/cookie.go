// Package cookie tracks the short-lived "cookie" files the daemon creates
// inside the metadata directory to synchronise with the kernel event
// stream: a cookie HIT tells the listener that every event prior to the
// cookie's creation has now been delivered.
package cookie

import "sync"

// Observation is the result of testing a filename against the registry.
type Observation int

const (
	// Miss means the name is not a cookie the daemon is currently
	// tracking -- an ordinary file, or a cookie already unregistered.
	Miss Observation = iota
	// Hit means the name matches an outstanding cookie.
	Hit
)

// Registry is a thread-safe set of outstanding cookie filenames.
type Registry struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{pending: make(map[string]struct{})}
}

// Register records that a cookie file with the given name has been
// created and is awaiting observation from the event stream.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[name] = struct{}{}
}

// Observe tests whether name matches an outstanding cookie. It does not
// remove the entry -- callers that want one-shot semantics should pair
// Observe with Unregister.
func (r *Registry) Observe(name string) Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[name]; ok {
		return Hit
	}
	return Miss
}

// Unregister removes name from the set of outstanding cookies, whether or
// not it was present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, name)
}

// ObserveAndUnregister is the common listener-side sequence: treat a
// cookie as consumed the first time it is seen in the event stream.
func (r *Registry) ObserveAndUnregister(name string) Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[name]; ok {
		delete(r.pending, name)
		return Hit
	}
	return Miss
}

// Len reports the number of outstanding cookies, mostly useful for tests
// and status reporting.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
