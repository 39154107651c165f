package sco

import "sync"

// Channel is one link-layer connection used by this protocol. It holds a
// transport reference for its whole life and a non-owning pointer to the
// socket paired with it.
type Channel struct {
	handle Handle
	local  Addr
	remote Addr
	mtu    int

	// held is guarded by the channels index lock.
	held bool

	// mu guards sk and retired. Writers of sk also hold the paired
	// socket's lock.
	mu      sync.Mutex
	sk      *Socket
	retired bool
}

func (c *Channel) Handle() Handle   { return c.handle }
func (c *Channel) LocalAddr() Addr  { return c.local }
func (c *Channel) RemoteAddr() Addr { return c.remote }
func (c *Channel) MTU() int         { return c.mtu }

// socket reads the paired socket; the lock covers only the dereference.
func (c *Channel) socket() *Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sk
}

// pair links s to c. Caller holds s.mu.
func (c *Channel) pair(s *Socket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sk != nil || c.retired {
		return ErrBusy
	}
	c.sk = s
	s.ch = c
	return nil
}

// unpair clears both weak references. Caller holds s.mu.
func (c *Channel) unpair(s *Socket) {
	c.mu.Lock()
	if c.sk == s {
		c.sk = nil
	}
	c.mu.Unlock()
	if s.ch == c {
		s.ch = nil
	}
}

// retire marks an unpaired channel as going away so nothing can pair with
// it afterwards. It fails when a socket is already paired.
func (c *Channel) retire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sk != nil {
		return false
	}
	c.retired = true
	return true
}

// channels indexes channels by transport handle.
type channels struct {
	mu    sync.Mutex
	items map[Handle]*Channel
}

func newChannels() *channels {
	return &channels{items: make(map[Handle]*Channel)}
}

func (cs *channels) get(h Handle) *Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.items[h]
}

// remove drops c from the index and reports whether it still held a
// transport reference.
func (cs *channels) remove(c *Channel) (removed, held bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cur, ok := cs.items[c.handle]; ok && cur == c {
		delete(cs.items, c.handle)
		held = c.held
		c.held = false
		return true, held
	}
	return false, false
}

func (cs *channels) drop(c *Channel) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	held := c.held
	c.held = false
	return held
}

func (cs *channels) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.items)
}

// acquireChannel returns the channel for h, creating it (and holding a
// transport reference) when none exists. A failed status yields nil.
func (p *Protocol) acquireChannel(h Handle, status Reason) *Channel {
	if status != ReasonSuccess || h == nil {
		return nil
	}
	p.chans.mu.Lock()
	defer p.chans.mu.Unlock()
	return p.channelLocked(h)
}

// acquirePaired indexes the channel for h and pairs s with it in one step,
// so transport callbacks never see the outbound channel unpaired. Caller
// holds s.mu.
func (p *Protocol) acquirePaired(h Handle, s *Socket) (*Channel, error) {
	p.chans.mu.Lock()
	defer p.chans.mu.Unlock()
	c := p.channelLocked(h)
	return c, c.pair(s)
}

// channelLocked expects p.chans.mu held.
func (p *Protocol) channelLocked(h Handle) *Channel {
	if c, ok := p.chans.items[h]; ok {
		return c
	}
	mtu := h.MTU()
	if mtu <= 0 {
		mtu = p.cfg.DefaultMTU
	}
	c := &Channel{
		handle: h,
		local:  h.LocalAddr(),
		remote: h.RemoteAddr(),
		mtu:    mtu,
		held:   true,
	}
	p.transport.Hold(h)
	p.chans.items[h] = c
	p.log.Debug().
		Str("local", c.local.String()).
		Str("remote", c.remote.String()).
		Int("mtu", mtu).
		Msg("sco channel added")
	return c
}

// releaseChannel drops c from the index and releases its transport
// reference. Only the first call for a channel releases.
func (p *Protocol) releaseChannel(c *Channel) {
	if c == nil {
		return
	}
	removed, held := p.chans.remove(c)
	if !removed {
		return
	}
	p.log.Debug().
		Str("local", c.local.String()).
		Str("remote", c.remote.String()).
		Msg("sco channel released")
	if held {
		p.transport.Release(c.handle)
	}
}

// dropChannelRef gives up the transport reference while the channel stays
// indexed and paired, so the link can go down underneath a socket in
// DISCONN.
func (p *Protocol) dropChannelRef(c *Channel) {
	if c == nil || !p.chans.drop(c) {
		return
	}
	p.transport.Release(c.handle)
}

// unpairAndRelease detaches s from its channel and destroys the channel.
// Caller holds s.mu.
func (p *Protocol) unpairAndRelease(s *Socket) {
	c := s.ch
	if c == nil {
		return
	}
	c.unpair(s)
	p.releaseChannel(c)
}
