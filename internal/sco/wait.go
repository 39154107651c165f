package sco

import (
	"context"
	"fmt"

	"github.com/google/netstack/waiter"
)

// wait blocks until ready reports done or ctx ends. ready runs with s.mu
// held and is re-evaluated after every notification matching mask.
func (s *Socket) wait(ctx context.Context, mask waiter.EventMask, ready func() (bool, error)) error {
	waitEntry, notifyCh := waiter.NewChannelEntry(nil)
	s.wq.EventRegister(&waitEntry, mask)
	defer s.wq.EventUnregister(&waitEntry)

	for {
		s.mu.Lock()
		done, err := ready()
		s.mu.Unlock()
		if done {
			return err
		}
		select {
		case <-notifyCh:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
	}
}
