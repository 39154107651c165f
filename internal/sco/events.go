package sco

import (
	"github.com/danmuck/scosock/internal/observability"
	"github.com/google/netstack/waiter"
)

var _ Events = (*Protocol)(nil)

// OnConnectIndication is asked whether an inbound link may proceed. The
// listener is chosen once the link is up, so the answer is always yes.
func (p *Protocol) OnConnectIndication(local, remote Addr, kind LinkKind) bool {
	p.log.Debug().
		Str("local", local.String()).
		Str("remote", remote.String()).
		Str("kind", kind.String()).
		Msg("sco connect indication")
	observability.RecordSCOIndication("accepted")
	return true
}

// OnConnectConfirmation reports the outcome of link establishment.
func (p *Protocol) OnConnectConfirmation(h Handle, status Reason) {
	p.log.Debug().
		Str("local", h.LocalAddr().String()).
		Str("remote", h.RemoteAddr().String()).
		Str("status", status.String()).
		Msg("sco connect confirmation")

	if status != ReasonSuccess {
		p.connDel(h, status.Err())
		return
	}
	if h.Outbound() {
		// the connecting socket indexes and pairs its channel itself and
		// reads the link status afterwards
		if c := p.chans.get(h); c != nil {
			p.connReady(c)
		}
		return
	}
	c := p.chans.get(h)
	if c == nil {
		c = p.acquireChannel(h, status)
	}
	p.connReady(c)
}

// OnDisconnectIndication reports that a link went down.
func (p *Protocol) OnDisconnectIndication(h Handle, reason Reason) {
	p.log.Debug().
		Str("local", h.LocalAddr().String()).
		Str("remote", h.RemoteAddr().String()).
		Str("reason", reason.String()).
		Msg("sco disconnect indication")
	p.connDel(h, reason.Err())
}

// OnDataReceived queues one inbound frame on the paired socket.
func (p *Protocol) OnDataReceived(h Handle, b []byte) {
	c := p.chans.get(h)
	if c == nil {
		observability.RecordSCOFrame("rx", 0, "no_channel")
		return
	}
	s := c.socket()
	if s == nil {
		observability.RecordSCOFrame("rx", 0, "unpaired")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != c || s.State() != StateConnected {
		observability.RecordSCOFrame("rx", 0, "not_connected")
		return
	}
	s.deliverLocked(b)
}

// connReady completes a paired outbound socket, or hands an inbound link to
// a listener.
func (p *Protocol) connReady(c *Channel) {
	if s := c.socket(); s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ch == c && s.State() == StateConnect {
			s.disarmTimer()
			s.setState(StateConnected)
		}
		return
	}
	if c.handle.Outbound() {
		// the owning socket closed; its release tears the link down
		return
	}

	parent := p.reg.FindListener(c.local)
	if parent == nil {
		p.log.Debug().Str("local", c.local.String()).Msg("sco no listener")
		observability.RecordSCOIndication("no_listener")
		p.rejectChannel(c)
		return
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.State() != StateListen {
		observability.RecordSCOIndication("no_listener")
		p.rejectChannel(c)
		return
	}
	if parent.backlogFullLocked() {
		p.log.Debug().Uint64("sock", parent.id).Msg("sco backlog full")
		observability.RecordSCOIndication("backlog_full")
		p.rejectChannel(c)
		return
	}

	child, err := p.newSocket(SeqPacket)
	if err != nil {
		p.rejectChannel(c)
		return
	}
	child.mu.Lock()
	defer child.mu.Unlock()
	child.sndTimeout = parent.sndTimeout
	child.voice = parent.voice
	p.reg.setAddrs(child, c.local, c.remote)

	if err := c.pair(child); err != nil {
		// a local connect claimed the channel first
		observability.RecordSCOIndication("busy")
		child.setState(StateClosed)
		child.released = true
		child.killLocked()
		return
	}
	child.setState(StateConnected)
	parent.enqueueLocked(child)
	parent.wq.Notify(waiter.EventIn)
	observability.RecordSCOIndication("queued")
	p.log.Debug().
		Uint64("sock", parent.id).
		Uint64("child", child.id).
		Str("remote", c.remote.String()).
		Msg("sco child queued")
}

// rejectChannel drops a channel nobody will pair with.
func (p *Protocol) rejectChannel(c *Channel) {
	if !c.retire() {
		return
	}
	p.releaseChannel(c)
}

// connDel closes whatever socket rides on h and destroys its channel. A
// failure for an outbound handle that has no channel yet is picked up by the
// connecting socket through Handle.Down.
func (p *Protocol) connDel(h Handle, err error) {
	c := p.chans.get(h)
	if c == nil {
		return
	}
	if s := c.socket(); s != nil {
		s.mu.Lock()
		if s.ch == c {
			if s.State() == StateDisconn {
				err = nil
			}
			s.closeLocked(err)
			s.killLocked()
		}
		s.mu.Unlock()
	}
	p.releaseChannel(c)
}
