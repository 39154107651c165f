package sco

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/scosock/internal/observability"
	"github.com/google/netstack/waiter"
)

// Socket is one application handle on the protocol.
type Socket struct {
	p   *Protocol
	id  uint64
	typ SocketType

	// state is written under mu and readable without it.
	state atomic.Int32

	mu sync.Mutex

	// local and remote are written under mu and the registry lock.
	local  Addr
	remote Addr

	ch         *Channel
	pendingErr error
	sndTimeout time.Duration
	linger     time.Duration
	voice      Voice

	// listener side
	maxBacklog int
	backlog    []*Socket
	// child side; set while queued on a listener
	parent *Socket

	timer    *time.Timer
	timerGen uint64

	rx *rxQueue

	released bool
	killed   bool

	wq waiter.Queue
}

func (s *Socket) ID() uint64 { return s.id }

func (s *Socket) Type() SocketType { return s.typ }

func (s *Socket) State() State {
	return State(s.state.Load())
}

func (s *Socket) LocalAddr() Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Socket) RemoteAddr() Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// setState records a transition and wakes waiters. Caller holds s.mu.
func (s *Socket) setState(to State) {
	from := s.State()
	if from == to {
		return
	}
	s.state.Store(int32(to))
	observability.RecordSCOTransition(from.String(), to.String())
	s.p.log.Debug().
		Uint64("sock", s.id).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("sco state")
	mask := waiter.EventOut
	if to == StateClosed {
		mask |= waiter.EventIn | waiter.EventHUp | waiter.EventErr
	}
	s.wq.Notify(mask)
}

// takeErrLocked returns and clears the pending error, or def when none.
func (s *Socket) takeErrLocked(def error) error {
	if err := s.pendingErr; err != nil {
		s.pendingErr = nil
		return err
	}
	return def
}

// Err returns and clears the pending asynchronous error.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeErrLocked(nil)
}

// Bind claims a local address.
func (s *Socket) Bind(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateOpen {
		return ErrBadState
	}
	if err := s.p.reg.bindAddr(s, addr); err != nil {
		return err
	}
	s.setState(StateBound)
	return nil
}

// Listen makes a bound socket visible to inbound connections.
func (s *Socket) Listen(backlog int) error {
	if backlog < 0 {
		return fmt.Errorf("%w: negative backlog", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateBound {
		return ErrBadState
	}
	s.maxBacklog = backlog
	s.backlog = nil
	s.setState(StateListen)
	return nil
}

// Connect starts a connection to remote and waits until it is established,
// fails, or ctx is done. Cancelling ctx does not abandon the attempt.
func (s *Socket) Connect(ctx context.Context, remote Addr) error {
	if err := s.StartConnect(remote); err != nil {
		return err
	}
	return s.WaitConnected(ctx)
}

// StartConnect asks the transport for a link and pairs the socket with its
// channel. It does not block: the socket ends in CONNECTED when the link is
// already up, in CLOSED with the link's error when it already failed, and
// otherwise in CONNECT with the connect timer armed.
func (s *Socket) StartConnect(remote Addr) error {
	if remote.IsAny() {
		return fmt.Errorf("%w: wildcard remote address", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.State()
	if st != StateOpen && st != StateBound {
		return ErrBadState
	}
	if s.typ != SeqPacket {
		return ErrSocketTypeNotSupported
	}

	h, err := s.p.transport.Connect(s.local, remote, s.linkParams())
	if err != nil {
		return err
	}
	c, err := s.p.acquirePaired(h, s)
	// the channel holds its own reference
	s.p.transport.Release(h)

	if err != nil {
		s.p.log.Debug().
			Uint64("sock", s.id).
			Str("remote", remote.String()).
			Msg("sco channel busy")
		observability.RecordSCOConnect("busy")
		s.setState(StateClosed)
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	}
	s.p.reg.setAddrs(s, c.local, remote)

	if h.Connected() {
		s.disarmTimer()
		s.setState(StateConnected)
		observability.RecordSCOConnect("connected")
		return nil
	}
	if reason, down := h.Down(); down {
		// the failure was reported before the channel existed
		s.p.unpairAndRelease(s)
		s.setState(StateClosed)
		observability.RecordSCOConnect("failed")
		if err := reason.Err(); err != nil {
			return err
		}
		return ErrConnectionRefused
	}
	s.setState(StateConnect)
	s.armTimer(s.sndTimeout)
	observability.RecordSCOConnect("pending")
	return nil
}

// WaitConnected blocks while the socket is in CONNECT.
func (s *Socket) WaitConnected(ctx context.Context) error {
	return s.wait(ctx, waiter.EventOut|waiter.EventHUp|waiter.EventErr, func() (bool, error) {
		switch s.State() {
		case StateConnect:
			return false, nil
		case StateConnected:
			return true, nil
		default:
			return true, s.takeErrLocked(ErrNotConnected)
		}
	})
}

// Accept returns the oldest established child of a listening socket.
func (s *Socket) Accept(ctx context.Context) (*Socket, error) {
	var child *Socket
	err := s.wait(ctx, waiter.EventIn|waiter.EventHUp|waiter.EventErr, func() (bool, error) {
		if s.State() != StateListen {
			return true, s.takeErrLocked(ErrBadState)
		}
		child = s.dequeueLocked()
		return child != nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.p.log.Debug().
		Uint64("sock", s.id).
		Uint64("child", child.id).
		Msg("sco accepted")
	return child, nil
}

// Close tears the socket down without blocking. Closing twice is a no-op.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(nil)
	s.killLocked()
	return nil
}

// closeLocked drives the socket to CLOSED, recording err as the pending
// error when the socket had a channel. Caller holds s.mu.
func (s *Socket) closeLocked(err error) {
	st := s.State()
	switch {
	case st == StateClosed:
		return
	case st == StateListen:
		s.cleanupListenLocked()
	case st.hasChannel():
		s.disarmTimer()
		s.p.unpairAndRelease(s)
		if err != nil {
			s.pendingErr = err
		}
	}
	s.disarmTimer()
	s.setState(StateClosed)
}

// Shutdown stops sending and lets the link wind down. A connected socket
// enters DISCONN until the link is gone or the disconnect timeout fires;
// with a linger timeout set, Shutdown waits up to that long for CLOSED.
func (s *Socket) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.State() {
	case StateConnected:
		s.setState(StateDisconn)
		s.armTimer(s.p.cfg.DisconnectTimeout)
		s.p.dropChannelRef(s.ch)
	case StateDisconn, StateClosed:
	default:
		s.closeLocked(nil)
	}
	linger := s.linger
	s.mu.Unlock()

	if linger <= 0 {
		return nil
	}
	lctx, cancel := context.WithTimeout(ctx, linger)
	defer cancel()
	err := s.wait(lctx, waiter.EventHUp, func() (bool, error) {
		return s.State() == StateClosed, nil
	})
	if err != nil && ctx.Err() == nil {
		// linger expired; teardown continues in the background
		return nil
	}
	return err
}

// Release drops the application's handle. The socket is freed once it is
// both released and CLOSED.
func (s *Socket) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(nil)
	s.released = true
	s.killLocked()
	return nil
}

// killLocked frees the socket once released and closed. Caller holds s.mu.
func (s *Socket) killLocked() {
	if s.killed || !s.released || s.State() != StateClosed {
		return
	}
	s.killed = true
	s.rx.reset()
	s.p.freeSocket(s)
}

// Options is the negotiated link configuration.
type Options struct {
	MTU int
}

// ConnInfo identifies the underlying link.
type ConnInfo struct {
	Handle   uint16
	DevClass [3]byte
}

func (s *Socket) Options() (Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateConnected || s.ch == nil {
		return Options{}, ErrNotConnected
	}
	return Options{MTU: s.ch.mtu}, nil
}

func (s *Socket) ConnInfo() (ConnInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateConnected || s.ch == nil {
		return ConnInfo{}, ErrNotConnected
	}
	return ConnInfo{
		Handle:   s.ch.handle.ConnHandle(),
		DevClass: s.ch.handle.DevClass(),
	}, nil
}

// SetSendTimeout sets the connect timer duration; 0 disables the timer.
func (s *Socket) SetSendTimeout(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sndTimeout = d
	return nil
}

func (s *Socket) SendTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sndTimeout
}

func (s *Socket) SetLinger(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative linger", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linger = d
	return nil
}

// SetVoice selects the air coding; only valid before connecting.
func (s *Socket) SetVoice(v Voice) error {
	if !v.valid() {
		return fmt.Errorf("%w: voice setting 0x%04x", ErrInvalidArgument, uint16(v))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.State(); st != StateOpen && st != StateBound {
		return ErrBadState
	}
	s.voice = v
	return nil
}

func (s *Socket) Voice() Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

func (s *Socket) linkParams() LinkParams {
	kind := LinkSCO
	if s.voice == VoiceTransparent {
		kind = LinkESCO
	}
	return LinkParams{Kind: kind, Voice: s.voice}
}

func (s *Socket) info() SocketInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := SocketInfo{
		ID:      s.id,
		Local:   s.local,
		Remote:  s.remote,
		State:   s.State().String(),
		Backlog: len(s.backlog),
	}
	if s.ch != nil {
		in.MTU = s.ch.mtu
	}
	if s.rx != nil {
		in.Queued = s.rx.frames()
	}
	return in
}
