package sco

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/scosock/internal/testutil/testlog"
)

type fakeHandle struct {
	local    Addr
	remote   Addr
	outbound bool
	mtu      int
	handle   uint16
	up       atomic.Bool

	mu         sync.Mutex
	down       bool
	downReason Reason
}

func (h *fakeHandle) LocalAddr() Addr    { return h.local }
func (h *fakeHandle) RemoteAddr() Addr   { return h.remote }
func (h *fakeHandle) Connected() bool    { return h.up.Load() }
func (h *fakeHandle) Outbound() bool     { return h.outbound }
func (h *fakeHandle) MTU() int           { return h.mtu }
func (h *fakeHandle) ConnHandle() uint16 { return h.handle }
func (h *fakeHandle) DevClass() [3]byte  { return [3]byte{0x04, 0x04, 0x20} }

func (h *fakeHandle) Down() (Reason, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.downReason, h.down
}

// fail marks the link as gone with reason.
func (h *fakeHandle) fail(reason Reason) {
	h.up.Store(false)
	h.mu.Lock()
	h.down = true
	h.downReason = reason
	h.mu.Unlock()
}

// fakeTransport records calls and never calls back into the protocol.
type fakeTransport struct {
	mu         sync.Mutex
	local      Addr
	mtu        int
	autoUp     bool
	connectErr error
	sendErr    error
	refs       map[*fakeHandle]int
	releases   int
	links      map[Addr]*fakeHandle
	sent       [][]byte
	params     []LinkParams
	nextHandle uint16

	// onConnect runs after Connect hands out a new link and before the
	// caller sees it, standing in for events that beat the caller.
	onConnect func(h *fakeHandle)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		local:      MustParseAddr("00:1A:7D:DA:71:01"),
		refs:       make(map[*fakeHandle]int),
		links:      make(map[Addr]*fakeHandle),
		nextHandle: 0x0040,
	}
}

func (f *fakeTransport) Connect(local, remote Addr, params LinkParams) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.params = append(f.params, params)
	if h, ok := f.links[remote]; ok && f.refs[h] > 0 {
		f.refs[h]++
		return h, nil
	}
	if local.IsAny() {
		local = f.local
	}
	h := &fakeHandle{local: local, remote: remote, outbound: true, mtu: f.mtu, handle: f.nextHandle}
	f.nextHandle++
	h.up.Store(f.autoUp)
	f.links[remote] = h
	f.refs[h] = 1
	if hook := f.onConnect; hook != nil {
		f.mu.Unlock()
		hook(h)
		f.mu.Lock()
	}
	return h, nil
}

func (f *fakeTransport) Send(h Handle, b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeTransport) Hold(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[h.(*fakeHandle)]++
}

func (f *fakeTransport) Release(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[h.(*fakeHandle)]--
	f.releases++
}

// inbound fabricates a peer-initiated link that is already up.
func (f *fakeTransport) inbound(local, remote Addr, mtu int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{local: local, remote: remote, mtu: mtu, handle: f.nextHandle}
	f.nextHandle++
	h.up.Store(true)
	return h
}

func (f *fakeTransport) refCount(h *fakeHandle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs[h]
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func newTestProtocol(t *testing.T, ft *fakeTransport, mutate ...func(*Config)) *Protocol {
	t.Helper()
	testlog.Start(t)
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	p := New(ft, cfg)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func mustOpen(t *testing.T, p *Protocol) *Socket {
	t.Helper()
	s, err := p.Open(SeqPacket)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

// connected returns a socket in CONNECTED over a fresh outbound link.
func connected(t *testing.T, p *Protocol, ft *fakeTransport, remote Addr) (*Socket, *fakeHandle) {
	t.Helper()
	ft.mu.Lock()
	ft.autoUp = true
	ft.mu.Unlock()
	s := mustOpen(t, p)
	if err := s.StartConnect(remote); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.State(); got != StateConnected {
		t.Fatalf("state: got %v want CONNECTED", got)
	}
	ft.mu.Lock()
	h := ft.links[remote]
	ft.mu.Unlock()
	return s, h
}

func waitState(t *testing.T, s *Socket, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state: got %v want %v", s.State(), want)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
