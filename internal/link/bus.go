package link

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/scosock/internal/observability"
	"github.com/danmuck/scosock/internal/sco"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AdapterConfig describes one simulated radio.
type AdapterConfig struct {
	Addr     sco.Addr
	MTU      int
	DevClass [3]byte
	// Unresponsive adapters never answer pages; links to them stay pending.
	Unresponsive bool
}

// Adapter is one radio attached to a Bus.
type Adapter struct {
	cfg    AdapterConfig
	bus    *Bus
	events sco.Events
}

func (a *Adapter) Addr() sco.Addr           { return a.cfg.Addr }
func (a *Adapter) Config() AdapterConfig    { return a.cfg }
func (a *Adapter) Transport() sco.Transport { return a.bus }

// AdapterInfo is one row of the adapter listing.
type AdapterInfo struct {
	Addr         sco.Addr `json:"addr"`
	MTU          int      `json:"mtu"`
	Unresponsive bool     `json:"unresponsive,omitempty"`
	Links        int      `json:"links"`
}

// Endpoint is one side of a link and implements sco.Handle.
type Endpoint struct {
	l        *link
	adapter  *Adapter
	peer     *Endpoint
	remote   sco.Addr
	outbound bool
	handle   uint16

	// refs and downReason are guarded by the bus lock.
	refs       int
	downReason sco.Reason
}

func (e *Endpoint) LocalAddr() sco.Addr  { return e.adapter.cfg.Addr }
func (e *Endpoint) RemoteAddr() sco.Addr { return e.remote }
func (e *Endpoint) Connected() bool      { return e.l.up.Load() }
func (e *Endpoint) Outbound() bool       { return e.outbound }
func (e *Endpoint) MTU() int             { return e.adapter.cfg.MTU }
func (e *Endpoint) ConnHandle() uint16   { return e.handle }
func (e *Endpoint) DevClass() [3]byte    { return e.peer.adapter.cfg.DevClass }

// Down reports whether the link is gone and the status this side observed.
func (e *Endpoint) Down() (sco.Reason, bool) {
	b := e.adapter.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	return e.downReason, e.l.down
}

type link struct {
	out    *Endpoint
	in     *Endpoint
	params sco.LinkParams
	up     atomic.Bool
	// down is guarded by the bus lock.
	down bool
}

// Bus connects adapters and carries link events between them.
type Bus struct {
	log zerolog.Logger

	mu         sync.Mutex
	adapters   []*Adapter
	links      []*link
	nextHandle uint16
	closed     bool

	events *dispatcher
}

var _ sco.Transport = (*Bus)(nil)

// NewBus starts the dispatch goroutine; Close stops it.
func NewBus() *Bus {
	observability.RegisterMetrics()
	return &Bus{
		log:        log.Logger.With().Str("component", "link").Logger(),
		nextHandle: 0x0100,
		events:     newDispatcher(),
	}
}

// WithLogger replaces the bus logger.
func (b *Bus) WithLogger(l zerolog.Logger) *Bus {
	b.log = l
	return b
}

// Attach adds an adapter whose link events go to ev.
func (b *Bus) Attach(cfg AdapterConfig, ev sco.Events) (*Adapter, error) {
	if cfg.Addr.IsAny() {
		return nil, errors.Wrap(sco.ErrInvalidArgument, "adapter address must not be the wildcard")
	}
	if ev == nil {
		return nil, errors.Wrap(sco.ErrInvalidArgument, "adapter needs an event sink")
	}
	if cfg.MTU < 0 {
		return nil, errors.Wrapf(sco.ErrInvalidArgument, "adapter %s mtu %d", cfg.Addr, cfg.MTU)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	if b.adapterLocked(cfg.Addr) != nil {
		return nil, errors.Wrapf(ErrDuplicateAdapter, "%s", cfg.Addr)
	}
	a := &Adapter{cfg: cfg, bus: b, events: ev}
	b.adapters = append(b.adapters, a)
	b.log.Debug().Str("addr", cfg.Addr.String()).Int("mtu", cfg.MTU).Msg("adapter attached")
	return a, nil
}

func (b *Bus) adapterLocked(addr sco.Addr) *Adapter {
	for _, a := range b.adapters {
		if a.cfg.Addr == addr {
			return a
		}
	}
	return nil
}

// Adapters lists attached adapters in attach order.
func (b *Bus) Adapters() []AdapterInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AdapterInfo, 0, len(b.adapters))
	for _, a := range b.adapters {
		n := 0
		for _, l := range b.links {
			if l.out.adapter == a || l.in.adapter == a {
				n++
			}
		}
		out = append(out, AdapterInfo{
			Addr:         a.cfg.Addr,
			MTU:          a.cfg.MTU,
			Unresponsive: a.cfg.Unresponsive,
			Links:        n,
		})
	}
	return out
}

// Links returns the number of links that are pending or up.
func (b *Bus) Links() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.links)
}

// Connect pages remote from local. A wildcard local picks the first other
// adapter. An existing link between the pair is reused and gains a
// reference; otherwise a new link is created and established asynchronously.
func (b *Bus) Connect(local, remote sco.Addr, params sco.LinkParams) (sco.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	src := b.routeLocked(local, remote)
	if src == nil {
		return nil, errors.Wrapf(sco.ErrUnreachable, "no adapter for %s", local)
	}
	dst := b.adapterLocked(remote)
	if dst == nil || dst == src {
		return nil, errors.Wrapf(sco.ErrUnreachable, "remote %s", remote)
	}

	if ep := b.endpointLocked(src, dst); ep != nil {
		ep.refs++
		b.log.Debug().
			Str("local", src.cfg.Addr.String()).
			Str("remote", remote.String()).
			Uint16("handle", ep.handle).
			Msg("link reused")
		return ep, nil
	}

	l := &link{params: params}
	l.out = &Endpoint{l: l, adapter: src, remote: dst.cfg.Addr, outbound: true, handle: b.allocHandleLocked(), refs: 1}
	l.in = &Endpoint{l: l, adapter: dst, remote: src.cfg.Addr, handle: b.allocHandleLocked()}
	l.out.peer = l.in
	l.in.peer = l.out
	b.links = append(b.links, l)

	b.log.Debug().
		Str("local", src.cfg.Addr.String()).
		Str("remote", remote.String()).
		Str("kind", params.Kind.String()).
		Msg("link paging")
	if !dst.cfg.Unresponsive {
		b.post("establish", func() { b.establish(l) })
	}
	return l.out, nil
}

func (b *Bus) routeLocked(local, remote sco.Addr) *Adapter {
	if !local.IsAny() {
		return b.adapterLocked(local)
	}
	for _, a := range b.adapters {
		if a.cfg.Addr != remote {
			return a
		}
	}
	return nil
}

// endpointLocked finds the live endpoint on src of a link to dst.
func (b *Bus) endpointLocked(src, dst *Adapter) *Endpoint {
	for _, l := range b.links {
		if l.down {
			continue
		}
		switch {
		case l.out.adapter == src && l.in.adapter == dst:
			return l.out
		case l.in.adapter == src && l.out.adapter == dst:
			return l.in
		}
	}
	return nil
}

func (b *Bus) allocHandleLocked() uint16 {
	h := b.nextHandle
	b.nextHandle++
	if b.nextHandle > 0x0eff {
		b.nextHandle = 0x0100
	}
	return h
}

// establish runs on the dispatch goroutine.
func (b *Bus) establish(l *link) {
	in, out := l.in, l.out
	accept := in.adapter.events.OnConnectIndication(in.LocalAddr(), in.remote, l.params.Kind)

	b.mu.Lock()
	if l.down {
		b.mu.Unlock()
		return
	}
	if !accept {
		out.downReason = sco.ReasonRejectedResources
		b.removeLocked(l)
		b.mu.Unlock()
		out.adapter.events.OnConnectConfirmation(out, sco.ReasonRejectedResources)
		return
	}
	l.up.Store(true)
	b.mu.Unlock()

	out.adapter.events.OnConnectConfirmation(out, sco.ReasonSuccess)
	in.adapter.events.OnConnectConfirmation(in, sco.ReasonSuccess)

	// nobody took the inbound side
	b.mu.Lock()
	idle := !l.down && in.refs == 0
	if idle {
		b.teardownLocked(l, in, sco.ReasonRejectedResources)
	}
	b.mu.Unlock()
}

func (b *Bus) endpoint(h sco.Handle) (*Endpoint, error) {
	ep, ok := h.(*Endpoint)
	if !ok || ep == nil || ep.adapter.bus != b {
		return nil, ErrForeignHandle
	}
	return ep, nil
}

// Hold adds a reference to h.
func (b *Bus) Hold(h sco.Handle) {
	ep, err := b.endpoint(h)
	if err != nil {
		b.log.Warn().Err(err).Msg("hold")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ep.refs++
}

// Release drops a reference to h; the last one disconnects the link.
func (b *Bus) Release(h sco.Handle) {
	ep, err := b.endpoint(h)
	if err != nil {
		b.log.Warn().Err(err).Msg("release")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep.refs <= 0 {
		b.log.Warn().Uint16("handle", ep.handle).Msg("release without reference")
		return
	}
	ep.refs--
	if ep.refs == 0 && !ep.l.down {
		b.teardownLocked(ep.l, ep, sco.ReasonRemoteUserTerminated)
	}
}

// teardownLocked takes l down on behalf of the from side. from observes a
// local termination and its peer observes reason.
func (b *Bus) teardownLocked(l *link, from *Endpoint, reason sco.Reason) {
	wasUp := l.up.Load()
	from.downReason = sco.ReasonLocalHostTerminated
	from.peer.downReason = reason
	b.removeLocked(l)
	b.log.Debug().
		Uint16("handle", from.handle).
		Str("local", from.LocalAddr().String()).
		Str("remote", from.remote.String()).
		Str("reason", reason.String()).
		Msg("link down")

	peer := from.peer
	if wasUp {
		b.post("disconnect", func() {
			from.adapter.events.OnDisconnectIndication(from, sco.ReasonLocalHostTerminated)
		})
		b.post("disconnect", func() {
			peer.adapter.events.OnDisconnectIndication(peer, reason)
		})
		return
	}
	if from.outbound {
		// page abandoned before the peer answered
		b.post("confirm", func() {
			from.adapter.events.OnConnectConfirmation(from, sco.ReasonLocalHostTerminated)
		})
	}
}

func (b *Bus) removeLocked(l *link) {
	l.down = true
	l.up.Store(false)
	for i, cur := range b.links {
		if cur == l {
			b.links = append(b.links[:i], b.links[i+1:]...)
			return
		}
	}
}

// Send delivers a copy of p to the peer endpoint.
func (b *Bus) Send(h sco.Handle, p []byte) (int, error) {
	ep, err := b.endpoint(h)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep.l.down || !ep.l.up.Load() {
		return 0, errors.Wrapf(sco.ErrNotConnected, "handle 0x%04x", ep.handle)
	}
	if mtu := ep.adapter.cfg.MTU; mtu > 0 && len(p) > mtu {
		return 0, errors.Wrapf(sco.ErrMessageTooLarge, "%d > %d", len(p), mtu)
	}
	frame := make([]byte, len(p))
	copy(frame, p)
	peer := ep.peer
	b.post("data", func() {
		peer.adapter.events.OnDataReceived(peer, frame)
	})
	return len(p), nil
}

// Drop takes down the link between a and b as if a disconnected with
// reason: b observes reason, a observes a local termination.
func (b *Bus) Drop(a, peer sco.Addr, reason sco.Reason) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.adapterLocked(a)
	dst := b.adapterLocked(peer)
	if src == nil || dst == nil {
		return errors.Wrapf(ErrUnknownAdapter, "%s -> %s", a, peer)
	}
	ep := b.endpointLocked(src, dst)
	if ep == nil {
		return errors.Wrapf(ErrNoLink, "%s -> %s", a, peer)
	}
	b.teardownLocked(ep.l, ep, reason)
	return nil
}

// Flush waits until every queued link event has been delivered. It must not
// be called from an event callback.
func (b *Bus) Flush() {
	b.events.idle()
}

// Close drops every link, delivers the pending events and stops dispatch.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	for len(b.links) > 0 {
		l := b.links[0]
		b.teardownLocked(l, l.out, sco.ReasonRemotePowerOff)
	}
	b.closed = true
	b.mu.Unlock()
	b.events.close()
	return nil
}

// post queues fn on the dispatch goroutine. Caller may hold the bus lock.
func (b *Bus) post(kind string, fn func()) {
	if !b.events.push(func() {
		observability.RecordLinkEvent(kind)
		fn()
	}) {
		b.log.Debug().Str("kind", kind).Msg("event dropped after close")
	}
}
