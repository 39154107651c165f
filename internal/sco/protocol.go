package sco

import (
	"sync/atomic"

	"github.com/danmuck/scosock/internal/observability"
	"github.com/rs/zerolog"
)

// Protocol is one instance of the socket layer: the registry, the channel
// index and the transport it rides on. A process creates one at startup and
// closes it at shutdown.
type Protocol struct {
	cfg       Config
	log       *zerolog.Logger
	transport Transport

	reg   *Registry
	chans *channels

	nextID    atomic.Uint64
	allocated atomic.Int64
	freed     atomic.Int64
	closed    atomic.Bool
}

// Stats is the socket allocation accounting.
type Stats struct {
	Allocated int64
	Freed     int64
	Live      int
	Channels  int
}

// SocketInfo is one row of the introspection listing.
type SocketInfo struct {
	ID      uint64 `json:"id"`
	Local   Addr   `json:"local"`
	Remote  Addr   `json:"remote"`
	State   string `json:"state"`
	MTU     int    `json:"mtu,omitempty"`
	Backlog int    `json:"backlog,omitempty"`
	Queued  int    `json:"queued,omitempty"`
}

// New creates a protocol instance on top of t.
func New(t Transport, cfg Config) *Protocol {
	cfg = cfg.WithDefaults()
	observability.RegisterMetrics()
	return &Protocol{
		cfg:       cfg,
		log:       cfg.Logger,
		transport: t,
		reg:       newRegistry(),
		chans:     newChannels(),
	}
}

func (p *Protocol) Config() Config {
	return p.cfg
}

func (p *Protocol) Registry() *Registry {
	return p.reg
}

// Open allocates a socket in OPEN state and registers it.
func (p *Protocol) Open(typ SocketType) (*Socket, error) {
	if typ != SeqPacket {
		return nil, ErrSocketTypeNotSupported
	}
	s, err := p.newSocket(typ)
	if err != nil {
		return nil, err
	}
	p.log.Debug().Uint64("sock", s.id).Msg("sco socket opened")
	return s, nil
}

func (p *Protocol) newSocket(typ SocketType) (*Socket, error) {
	if p.closed.Load() {
		return nil, ErrProtocolClosed
	}
	s := &Socket{
		p:          p,
		id:         p.nextID.Add(1),
		typ:        typ,
		sndTimeout: p.cfg.ConnectTimeout,
		voice:      VoiceCVSD,
		rx:         newRxQueue(p.cfg.RecvBufferSize),
	}
	s.state.Store(int32(StateOpen))
	p.reg.register(s)
	p.allocated.Add(1)
	observability.RecordSCOSocketOpened()
	return s, nil
}

// freeSocket is the final step of a socket's life.
func (p *Protocol) freeSocket(s *Socket) {
	if !p.reg.unregister(s) {
		p.log.Warn().Uint64("sock", s.id).Msg("sco socket missing from registry")
		return
	}
	p.freed.Add(1)
	observability.RecordSCOSocketFreed()
	p.log.Debug().Uint64("sock", s.id).Msg("sco socket killed")
}

func (p *Protocol) Stats() Stats {
	return Stats{
		Allocated: p.allocated.Load(),
		Freed:     p.freed.Load(),
		Live:      p.reg.Len(),
		Channels:  p.chans.len(),
	}
}

// Snapshot lists live sockets in registration order.
func (p *Protocol) Snapshot() []SocketInfo {
	list := p.reg.list()
	out := make([]SocketInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.info())
	}
	return out
}

// Close closes and releases every remaining socket. Further opens fail with
// ErrProtocolClosed.
func (p *Protocol) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	list := p.reg.list()
	for _, s := range list {
		s.mu.Lock()
		s.closeLocked(nil)
		s.released = true
		s.killLocked()
		s.mu.Unlock()
	}
	if n := p.reg.Len(); n != 0 {
		p.log.Warn().Int("live", n).Msg("sco sockets left after close")
	}
	p.log.Debug().Int("closed", len(list)).Msg("sco protocol closed")
	return nil
}
