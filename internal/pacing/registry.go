package pacing

import "sync"

// Registry hands out one Controller per (provider, tier) for the whole
// process.
type Registry struct {
	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*Controller)}
}

// Get returns the controller for the profile's key, creating it on first
// use. Later profiles with the same key reuse the first controller.
func (r *Registry) Get(p Profile) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[p.Key()]; ok {
		return c
	}
	c := NewController(p)
	r.controllers[p.Key()] = c
	return c
}
