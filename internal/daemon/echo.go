package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/danmuck/scosock/internal/sco"
	"github.com/rs/zerolog"
)

// minEchoBuffer covers peers whose MTU exceeds the local one.
const minEchoBuffer = 1024

type echo struct {
	cfg EchoListener
	ln  *sco.Socket
	log zerolog.Logger

	echoed atomic.Uint64

	mu       sync.Mutex
	children map[*sco.Socket]struct{}
	wg       sync.WaitGroup
}

func openEcho(p *sco.Protocol, cfg EchoListener, log zerolog.Logger) (*echo, error) {
	ln, err := p.Open(sco.SeqPacket)
	if err != nil {
		return nil, err
	}
	if err := ln.Bind(cfg.Addr); err != nil {
		_ = ln.Release()
		return nil, err
	}
	if err := ln.Listen(cfg.Backlog); err != nil {
		_ = ln.Release()
		return nil, err
	}
	return &echo{
		cfg:      cfg,
		ln:       ln,
		log:      log.With().Str("echo", cfg.Addr.String()).Logger(),
		children: make(map[*sco.Socket]struct{}),
	}, nil
}

// run accepts until the listener closes or ctx is done, then waits for
// every child.
func (e *echo) run(ctx context.Context) {
	defer e.wg.Wait()
	for {
		child, err := e.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, sco.ErrBadState) {
				e.log.Warn().Err(err).Msg("echo accept failed")
			}
			return
		}
		e.track(child)
		e.log.Debug().
			Uint64("sock", child.ID()).
			Str("remote", child.RemoteAddr().String()).
			Msg("echo accepted")
		e.wg.Go(func() {
			defer e.untrack(child)
			e.serve(ctx, child)
		})
	}
}

func (e *echo) serve(ctx context.Context, sk *sco.Socket) {
	defer sk.Release()
	opts, err := sk.Options()
	if err != nil {
		return
	}
	buf := make([]byte, max(opts.MTU, minEchoBuffer))
	for {
		n, err := sk.Recv(ctx, buf)
		if err != nil {
			if ctx.Err() == nil {
				e.log.Debug().Uint64("sock", sk.ID()).Err(err).Msg("echo peer gone")
			}
			return
		}
		if _, err := sk.Send(buf[:n]); err != nil {
			e.log.Debug().Uint64("sock", sk.ID()).Err(err).Msg("echo send failed")
			return
		}
		e.echoed.Add(1)
	}
}

func (e *echo) track(sk *sco.Socket) {
	e.mu.Lock()
	e.children[sk] = struct{}{}
	e.mu.Unlock()
}

func (e *echo) untrack(sk *sco.Socket) {
	e.mu.Lock()
	delete(e.children, sk)
	e.mu.Unlock()
}

// close stops the listener and closes accepted children.
func (e *echo) close() {
	_ = e.ln.Release()
	e.mu.Lock()
	defer e.mu.Unlock()
	for sk := range e.children {
		_ = sk.Close()
	}
}
