package sco

import "sync"

// Registry is the set of live sockets in registration order. Socket counts
// are small; lookups are linear scans.
type Registry struct {
	mu    sync.RWMutex
	items []*Socket
}

func newRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) register(s *Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, s)
}

// unregister must be called once per registered socket.
func (r *Registry) unregister(s *Socket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, item := range r.items {
		if item == s {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

// findByLocalAddrLocked expects r.mu held.
func (r *Registry) findByLocalAddrLocked(addr Addr) *Socket {
	for _, s := range r.items {
		if s.local == addr {
			return s
		}
	}
	return nil
}

// FindByLocalAddr returns the first socket bound to addr.
func (r *Registry) FindByLocalAddr(addr Addr) *Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findByLocalAddrLocked(addr)
}

// bindAddr claims addr for s. A non-wildcard address already bound by
// another socket fails with ErrAddrInUse.
func (r *Registry) bindAddr(s *Socket, addr Addr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !addr.IsAny() {
		if other := r.findByLocalAddrLocked(addr); other != nil && other != s {
			return ErrAddrInUse
		}
	}
	s.local = addr
	return nil
}

// setAddrs updates addresses read by registry scans.
func (r *Registry) setAddrs(s *Socket, local, remote Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.local = local
	s.remote = remote
}

// FindListener returns the listening socket bound to src, else the first
// listener bound to the wildcard address in registration order.
func (r *Registry) FindListener(src Addr) *Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var wildcard *Socket
	for _, s := range r.items {
		if s.State() != StateListen {
			continue
		}
		if s.local == src {
			return s
		}
		if wildcard == nil && s.local.IsAny() {
			wildcard = s
		}
	}
	return wildcard
}

// Len returns the number of registered sockets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) list() []*Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Socket, len(r.items))
	copy(out, r.items)
	return out
}
