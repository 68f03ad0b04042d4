package window

import (
	"sync"
)

type registration struct {
	spec HookSpec
	cb   Callback
}

// Registry keeps the hooks of an event-stream backend and fans events out to them.
//
// Dispatch holds a read lock while callbacks run and Unregister takes the write
// lock, so once Unregister returns no callback of that hook is still executing
// or will be invoked again.
type Registry struct {
	mu     sync.RWMutex
	hooks  map[Handle]*registration
	order  []Handle
	next   Handle
	closed bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Handle]*registration)}
}

// Register adds a hook and returns its handle
func (r *Registry) Register(spec HookSpec, cb Callback) (Handle, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	r.next++
	h := r.next
	r.hooks[h] = &registration{spec: spec, cb: cb}
	r.order = append(r.order, h)
	return h, nil
}

// Unregister removes a hook. Unknown handles are ignored.
func (r *Registry) Unregister(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hooks[h]; !ok {
		return nil
	}
	delete(r.hooks, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Dispatch delivers ev to every hook whose spec selects it, in registration order.
// It returns the number of callbacks invoked.
func (r *Registry) Dispatch(ev Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, h := range r.order {
		reg := r.hooks[h]
		if !reg.spec.Matches(ev.Type, ev.ProcessID) {
			continue
		}
		ev.Hook = h
		reg.cb(ev)
		delivered++
	}
	return delivered
}

// Len returns the number of live hooks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// Close drops every hook and rejects later registrations
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.hooks = make(map[Handle]*registration)
	r.order = nil
}
