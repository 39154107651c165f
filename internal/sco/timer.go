package sco

import (
	"time"

	"github.com/danmuck/scosock/internal/observability"
)

// armTimer schedules onTimeout after d, replacing any armed timer. A
// non-positive d leaves the socket without a timer. Caller holds s.mu.
func (s *Socket) armTimer(d time.Duration) {
	s.disarmTimer()
	if d <= 0 {
		return
	}
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() { s.onTimeout(gen) })
	s.p.log.Debug().
		Uint64("sock", s.id).
		Dur("timeout", d).
		Msg("sco timer armed")
}

// disarmTimer stops the timer and invalidates a callback already in
// flight. Caller holds s.mu.
func (s *Socket) disarmTimer() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.timerGen++
}

// onTimeout runs on the timer goroutine. A stale generation means the timer
// was disarmed after it fired.
func (s *Socket) onTimeout(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen {
		return
	}
	s.timer = nil
	s.timerGen++

	switch s.State() {
	case StateConnect:
		s.p.log.Debug().Uint64("sock", s.id).Msg("sco connect timed out")
		observability.RecordSCOTimeout("connect")
		s.closeLocked(ErrTimedOut)
	case StateDisconn:
		s.p.log.Debug().Uint64("sock", s.id).Msg("sco disconnect timed out")
		observability.RecordSCOTimeout("disconnect")
		s.closeLocked(nil)
	default:
		return
	}
	s.killLocked()
}
