package frame

import (
	"fmt"
	"sync"

	"github.com/sarchlab/pagesim/mem/mm"
)

// Registry keeps all the live pools, in the order they were created, so that
// a frame number can be mapped back to the pool that owns it.
type Registry struct {
	lock  sync.RWMutex
	pools []*Pool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) register(p *Pool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, other := range r.pools {
		if p.base < other.base+mm.Frame(other.numFrames) &&
			other.base < p.base+mm.Frame(p.numFrames) {
			return fmt.Errorf("%s: overlaps with %s: %w",
				p.name, other.name, ErrInvalidLayout)
		}
	}

	r.pools = append(r.pools, p)

	return nil
}

func (r *Registry) unregister(p *Pool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for i, other := range r.pools {
		if other == p {
			r.pools = append(r.pools[:i], r.pools[i+1:]...)
			return
		}
	}
}

// Pools returns the registered pools in registration order.
func (r *Registry) Pools() []*Pool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	pools := make([]*Pool, len(r.pools))
	copy(pools, r.pools)

	return pools
}

// Owner returns the pool that owns the frame.
func (r *Registry) Owner(frame mm.Frame) (*Pool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, p := range r.pools {
		if p.Contains(frame) {
			return p, true
		}
	}

	return nil, false
}

// Release returns the run starting at first to whichever pool owns it.
func (r *Registry) Release(first mm.Frame) error {
	p, found := r.Owner(first)
	if !found {
		return fmt.Errorf("frame %d is not owned by any pool: %w",
			first, mm.ErrProtocolViolation)
	}

	return p.ReleaseFrames(first)
}
