package component

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO of closures drained by a single goroutine.
// Every closure posted to a mailbox runs on that goroutine, one at a time, in
// post order. Posts after Stop are discarded.
type Mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
	started bool
}

func NewMailbox() *Mailbox {
	m := &Mailbox{done: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start launches the draining goroutine. Calling Start twice is a no-op.
func (m *Mailbox) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
}

func (m *Mailbox) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.stopped {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
	}
}

// Post enqueues fn. It reports false when the mailbox is stopped.
func (m *Mailbox) Post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	m.queue = append(m.queue, fn)
	m.cond.Signal()
	return true
}

// Stop refuses further posts. Closures already queued still run.
func (m *Mailbox) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Done is closed once the draining goroutine has exited.
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

func (m *Mailbox) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Call runs fn on the mailbox goroutine and waits for it, bounded by ctx.
func Call[T any](ctx context.Context, m *Mailbox, fn func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if !m.Post(func() { reply <- fn() }) {
		return zero, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.done:
		// the closure may have run just before the loop exited
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrStopped
		}
	}
}
