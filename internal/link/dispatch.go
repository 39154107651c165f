package link

import "sync"

// dispatcher runs queued events in order on a single goroutine.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	busy   bool
	closed bool
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) push(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.items = append(d.items, fn)
	d.cond.Broadcast()
	return true
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.items) == 0 && !d.closed {
			d.busy = false
			d.cond.Broadcast()
			d.cond.Wait()
		}
		if len(d.items) == 0 {
			d.busy = false
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}
		fn := d.items[0]
		d.items[0] = nil
		d.items = d.items[1:]
		d.busy = true
		d.mu.Unlock()

		fn()
	}
}

// idle blocks until the queue is empty and no event is running. Events that
// queue further events are waited for too.
func (d *dispatcher) idle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for (len(d.items) > 0 || d.busy) && !d.closed {
		d.cond.Wait()
	}
}

// close drains queued events and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}
