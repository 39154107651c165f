package sco

import (
	"context"
	"io"

	"github.com/danmuck/scosock/internal/observability"
	"github.com/google/netstack/waiter"
	"github.com/smallnest/ringbuffer"
)

// rxQueue holds inbound frames for one socket. Payload bytes live in a ring
// buffer; lens keeps the frame boundaries.
type rxQueue struct {
	size int
	buf  *ringbuffer.RingBuffer
	lens []int
}

func newRxQueue(size int) *rxQueue {
	return &rxQueue{size: size}
}

// push appends one frame, or reports false when it does not fit.
func (q *rxQueue) push(b []byte) bool {
	if len(b) > q.size {
		return false
	}
	if len(b) > 0 {
		if q.buf == nil {
			q.buf = ringbuffer.New(q.size)
		}
		if q.buf.Free() < len(b) {
			return false
		}
		if _, err := q.buf.Write(b); err != nil {
			return false
		}
	}
	q.lens = append(q.lens, len(b))
	return true
}

func (q *rxQueue) frames() int {
	return len(q.lens)
}

// peek returns the length of the oldest frame.
func (q *rxQueue) peek() (int, bool) {
	if len(q.lens) == 0 {
		return 0, false
	}
	return q.lens[0], true
}

// pop copies the oldest frame into dst, which must be large enough.
func (q *rxQueue) pop(dst []byte) int {
	n := q.lens[0]
	q.lens = q.lens[1:]
	if n == 0 {
		return 0
	}
	read, _ := q.buf.Read(dst[:n])
	return read
}

func (q *rxQueue) reset() {
	q.lens = nil
	if q.buf != nil {
		q.buf.Reset()
	}
}

// Send hands one frame to the transport. Frames larger than the channel MTU
// are rejected whole.
func (s *Socket) Send(b []byte) (int, error) {
	s.mu.Lock()
	if err := s.takeErrLocked(nil); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if s.State() != StateConnected || s.ch == nil {
		s.mu.Unlock()
		return 0, ErrNotConnected
	}
	c := s.ch
	s.mu.Unlock()

	if len(b) > c.mtu {
		observability.RecordSCOFrame("tx", 0, "too_large")
		return 0, ErrMessageTooLarge
	}
	n, err := s.p.transport.Send(c.handle, b)
	if err != nil {
		observability.RecordSCOFrame("tx", 0, "error")
		return n, err
	}
	observability.RecordSCOFrame("tx", n, "ok")
	return n, nil
}

// Recv copies the next queued frame into buf. Once the queue is empty a
// pending error is returned, then ErrNotConnected. Recv blocks while the
// socket is connected and nothing is queued. A frame larger than buf is left
// queued and io.ErrShortBuffer is returned.
func (s *Socket) Recv(ctx context.Context, buf []byte) (int, error) {
	var n int
	err := s.wait(ctx, waiter.EventIn|waiter.EventHUp|waiter.EventErr, func() (bool, error) {
		if s.rx != nil {
			if size, ok := s.rx.peek(); ok {
				if size > len(buf) {
					return true, io.ErrShortBuffer
				}
				n = s.rx.pop(buf)
				return true, nil
			}
		}
		if err := s.takeErrLocked(nil); err != nil {
			return true, err
		}
		switch s.State() {
		case StateConnected, StateDisconn:
			return false, nil
		default:
			return true, ErrNotConnected
		}
	})
	return n, err
}

// deliverLocked queues an inbound frame. Caller holds s.mu.
func (s *Socket) deliverLocked(b []byte) {
	if s.rx == nil || !s.rx.push(b) {
		observability.RecordSCOFrame("rx", 0, "dropped")
		s.p.log.Debug().
			Uint64("sock", s.id).
			Int("len", len(b)).
			Msg("sco frame dropped")
		return
	}
	observability.RecordSCOFrame("rx", len(b), "ok")
	s.wq.Notify(waiter.EventIn)
}
