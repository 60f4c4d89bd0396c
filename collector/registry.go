package collector

import "sync"

// Handle identifies a collector inside its Definition. Handles are never reused.
type Handle uint64

// registry is an arena of attached collectors. Slots are kept in attach order. Detach leaves
// a hole that compact reclaims once enough of the arena is empty.
type registry struct {
	mu    sync.RWMutex
	slots []instance
	index map[Handle]int
	next  Handle
	live  int
}

func newRegistry() *registry {
	return &registry{index: make(map[Handle]int)}
}

func (r *registry) add(in instance) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	in.setHandle(h)
	r.index[h] = len(r.slots)
	r.slots = append(r.slots, in)
	r.live++
	return h
}

func (r *registry) remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[h]
	if !ok {
		return false
	}
	r.slots[i] = nil
	delete(r.index, h)
	r.live--
	if r.live*2 < len(r.slots) {
		r.compactLocked()
	}
	return true
}

func (r *registry) compactLocked() {
	slots := make([]instance, 0, r.live)
	for _, in := range r.slots {
		if in == nil {
			continue
		}
		r.index[in.Handle()] = len(slots)
		slots = append(slots, in)
	}
	r.slots = slots
}

func (r *registry) get(h Handle) (instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[h]
	if !ok {
		return nil, false
	}
	return r.slots[i], true
}

// snapshot returns the live collectors in attach order.
func (r *registry) snapshot() []instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]instance, 0, r.live)
	for _, in := range r.slots {
		if in != nil {
			out = append(out, in)
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}
