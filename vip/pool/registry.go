package pool

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// Registry tracks the pools of an application. It is created at startup
// and passed to the components needing to find a pool by name.
type Registry struct {
	mu    sync.Mutex
	pools []*Pool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// New creates a pool with a unique "PoolN" name and registers it.
func (r *Registry) New(opts ...Option) *Pool {
	p := New(opts...)
	r.mu.Lock()
	defer r.mu.Unlock()
	p.SetName(r.generateNameLocked())
	r.pools = append(r.pools, p)
	return p
}

// Add registers p. A pool already named like p is renamed.
func (r *Registry) Add(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.pools, p) {
		return
	}
	r.pools = append(r.pools, p)
	r.resolveLocked(p)
}

// Rename sets the name of p. A pool already named name is renamed.
func (r *Registry) Rename(p *Pool, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.SetName(name)
	r.resolveLocked(p)
}

func (r *Registry) resolveLocked(p *Pool) {
	name := p.Name()
	for _, o := range r.pools {
		if o != p && o.Name() == name {
			o.SetName(r.generateNameLocked())
			return
		}
	}
}

// Remove unregisters p without closing it.
func (r *Registry) Remove(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = slices.DeleteFunc(r.pools, func(o *Pool) bool { return o == p })
}

func (r *Registry) Pools() []*Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.pools)
}

func (r *Registry) Find(name string) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.pools, func(p *Pool) bool { return p.Name() == name })
	if idx < 0 {
		return nil, false
	}
	return r.pools[idx], true
}

// Close stops and closes every pool, then empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	pools := r.pools
	r.pools = nil
	r.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		p.Wait()
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// generateNameLocked returns the first free "PoolN" name.
func (r *Registry) generateNameLocked() string {
	taken := make(map[string]bool, len(r.pools))
	for _, p := range r.pools {
		taken[p.Name()] = true
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("Pool%d", i)
		if !taken[name] {
			return name
		}
	}
}
