package sco

import (
	"context"
	"errors"
	"testing"
	"time"
)

func listening(t *testing.T, p *Protocol, addr Addr, backlog int) *Socket {
	t.Helper()
	l := mustOpen(t, p)
	if err := l.Bind(addr); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := l.Listen(backlog); err != nil {
		t.Fatalf("listen: %v", err)
	}
	return l
}

func indicate(p *Protocol, h *fakeHandle) {
	if p.OnConnectIndication(h.local, h.remote, LinkSCO) {
		p.OnConnectConfirmation(h, ReasonSuccess)
	}
}

func TestInboundLinkIsQueuedAndAccepted(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 1)

	h := ft.inbound(localAddr, remoteAddr, 48)
	indicate(p, h)
	if l.Backlog() != 1 {
		t.Fatalf("backlog: %d", l.Backlog())
	}
	if got := ft.refCount(h); got != 1 {
		t.Fatalf("channel should hold the link, refs %d", got)
	}

	child, err := l.Accept(testContext(t))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if child.State() != StateConnected {
		t.Fatalf("child state: %v", child.State())
	}
	if child.LocalAddr() != localAddr || child.RemoteAddr() != remoteAddr {
		t.Fatalf("child addrs: %v -> %v", child.LocalAddr(), child.RemoteAddr())
	}
	opts, err := child.Options()
	if err != nil || opts.MTU != 48 {
		t.Fatalf("child options: %+v %v", opts, err)
	}
	if l.Backlog() != 0 {
		t.Fatalf("backlog after accept: %d", l.Backlog())
	}

	if err := child.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := ft.refCount(h); got != 0 {
		t.Fatalf("refs after child release: %d", got)
	}
}

func TestInboundWithoutListenerIsRejected(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)

	h := ft.inbound(localAddr, remoteAddr, 0)
	indicate(p, h)
	if got := ft.refCount(h); got != 0 {
		t.Fatalf("refs: %d", got)
	}
	st := p.Stats()
	if st.Channels != 0 || st.Live != 0 || st.Allocated != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestInboundPrefersExactListener(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	wild := listening(t, p, AddrAny, 1)
	exact := listening(t, p, localAddr, 1)

	indicate(p, ft.inbound(localAddr, remoteAddr, 0))
	if exact.Backlog() != 1 || wild.Backlog() != 0 {
		t.Fatalf("exact=%d wild=%d", exact.Backlog(), wild.Backlog())
	}
	indicate(p, ft.inbound(otherAddr, remoteAddr, 0))
	if wild.Backlog() != 1 {
		t.Fatalf("wildcard fallback missed, wild=%d", wild.Backlog())
	}
}

func TestBacklogFullRejects(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 1)

	first := ft.inbound(localAddr, remoteAddr, 0)
	second := ft.inbound(localAddr, otherAddr, 0)
	indicate(p, first)
	indicate(p, second)

	if l.Backlog() != 1 {
		t.Fatalf("backlog: %d", l.Backlog())
	}
	if ft.refCount(second) != 0 {
		t.Fatalf("overflow link still held")
	}
	if ft.refCount(first) != 1 {
		t.Fatalf("queued link not held")
	}
}

func TestZeroBacklogRejectsEverything(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 0)
	h := ft.inbound(localAddr, remoteAddr, 0)
	indicate(p, h)
	if l.Backlog() != 0 || ft.refCount(h) != 0 {
		t.Fatalf("backlog=%d refs=%d", l.Backlog(), ft.refCount(h))
	}
}

func TestAcceptBlocksUntilChildArrives(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 2)

	type result struct {
		s   *Socket
		err error
	}
	ctx := testContext(t)
	done := make(chan result, 1)
	go func() {
		s, err := l.Accept(ctx)
		done <- result{s, err}
	}()

	time.Sleep(10 * time.Millisecond)
	indicate(p, ft.inbound(localAddr, remoteAddr, 0))

	r := <-done
	if r.err != nil || r.s == nil || r.s.State() != StateConnected {
		t.Fatalf("accept: %+v", r)
	}
}

func TestAcceptRacingCloseReturnsError(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 4)
	h := ft.inbound(localAddr, remoteAddr, 0)
	indicate(p, h)

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	child, err := l.Accept(testContext(t))
	if child != nil || !errors.Is(err, ErrBadState) {
		t.Fatalf("accept after close: %v %v", child, err)
	}
	if ft.refCount(h) != 0 {
		t.Fatalf("queued child's link not released")
	}
	st := p.Stats()
	if st.Live != 1 || st.Freed != 1 {
		t.Fatalf("queued child should be freed, listener kept: %+v", st)
	}
}

func TestAcceptWakesOnConcurrentClose(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 4)

	ctx := testContext(t)
	done := make(chan error, 1)
	go func() {
		_, err := l.Accept(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	_ = l.Close()

	if err := <-done; !errors.Is(err, ErrBadState) {
		t.Fatalf("accept: %v", err)
	}
}

func TestAcceptInterruptKeepsQueuedChild(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Accept(ctx); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("accept: %v", err)
	}

	indicate(p, ft.inbound(localAddr, remoteAddr, 0))
	cancelled, stop := context.WithCancel(context.Background())
	stop()
	// a queued child is returned even when the context is already done
	child, err := l.Accept(cancelled)
	if err != nil || child == nil {
		t.Fatalf("accept with queued child: %v", err)
	}
}

func TestQueuedChildDisconnectIsSkipped(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 2)

	gone := ft.inbound(localAddr, remoteAddr, 0)
	kept := ft.inbound(localAddr, otherAddr, 0)
	indicate(p, gone)
	indicate(p, kept)
	p.OnDisconnectIndication(gone, ReasonRemoteUserTerminated)

	child, err := l.Accept(testContext(t))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if child.RemoteAddr() != otherAddr {
		t.Fatalf("accepted the disconnected child")
	}
	st := p.Stats()
	if st.Freed != 1 || st.Live != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestDuplicateIndicationRacingLocalConnect(t *testing.T) {
	ft := newFakeTransport()
	ft.autoUp = true
	p := newTestProtocol(t, ft)
	listening(t, p, AddrAny, 4)

	s := mustOpen(t, p)
	if err := s.StartConnect(remoteAddr); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ft.mu.Lock()
	h := ft.links[remoteAddr]
	ft.mu.Unlock()

	// the same link reported again must not create a second owner
	p.OnConnectConfirmation(h, ReasonSuccess)

	if s.State() != StateConnected {
		t.Fatalf("state: %v", s.State())
	}
	st := p.Stats()
	if st.Live != 2 || st.Channels != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestChildLosingPairRaceIsFreed(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProtocol(t, ft)
	l := listening(t, p, localAddr, 4)

	h := ft.inbound(localAddr, remoteAddr, 0)
	c := p.acquireChannel(h, ReasonSuccess)
	// another owner claimed the channel between the lookup and the pairing
	c.mu.Lock()
	c.retired = true
	c.mu.Unlock()
	p.connReady(c)

	st := p.Stats()
	if l.Backlog() != 0 || st.Allocated != 2 || st.Freed != 1 {
		t.Fatalf("backlog=%d stats=%+v", l.Backlog(), st)
	}
	if st.Channels != 1 {
		t.Fatalf("the channel belongs to the winner and must stay, channels=%d", st.Channels)
	}
}
