package bootstrap

import "sync"

// ApplyFunc repaints the root document from the stored preference and the
// current system signal.
type ApplyFunc func()

// Registry is the per-context handle through which the resolver shares its
// apply routine. The resolver publishes first; the switch may only depend on
// it after Ready is closed.
type Registry struct {
	mu    sync.Mutex
	apply ApplyFunc
	ready chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{ready: make(chan struct{})}
}

// Publish installs fn. The first call closes Ready; later calls replace fn.
func (r *Registry) Publish(fn ApplyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	first := r.apply == nil
	r.apply = fn
	if first {
		close(r.ready)
	}
}

// Lookup returns the published routine, if any.
func (r *Registry) Lookup() (ApplyFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply, r.apply != nil
}

// Ready is closed once a routine has been published.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}
