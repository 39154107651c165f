package sco

// enqueueLocked appends an established child. Caller holds s.mu and the
// child's lock.
func (s *Socket) enqueueLocked(child *Socket) {
	child.parent = s
	child.released = true
	s.backlog = append(s.backlog, child)
}

func (s *Socket) backlogFullLocked() bool {
	return len(s.backlog) >= s.maxBacklog
}

// dequeueLocked pops the oldest child that is still usable. Children closed
// while queued are freed here. Caller holds s.mu.
func (s *Socket) dequeueLocked() *Socket {
	for len(s.backlog) > 0 {
		child := s.backlog[0]
		s.backlog[0] = nil
		s.backlog = s.backlog[1:]

		child.mu.Lock()
		child.parent = nil
		if child.State() == StateClosed {
			child.killLocked()
			child.mu.Unlock()
			continue
		}
		// ownership moves to the caller of Accept
		child.released = false
		child.mu.Unlock()
		return child
	}
	return nil
}

// cleanupListenLocked closes and frees every queued child. Caller holds s.mu.
func (s *Socket) cleanupListenLocked() {
	for _, child := range s.backlog {
		child.mu.Lock()
		child.closeLocked(nil)
		child.parent = nil
		child.killLocked()
		child.mu.Unlock()
	}
	s.backlog = nil
}

// Backlog reports the number of queued children.
func (s *Socket) Backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}
