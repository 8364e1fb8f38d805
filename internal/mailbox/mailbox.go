package mailbox

import (
	"context"
	"sync"
	"sync/atomic"
)

// Mailbox is a bounded one-way queue with a single consumer. Post never
// blocks: when the queue is full the message is dropped and counted.
type Mailbox[T any] struct {
	queue chan T

	closeOnce sync.Once
	closed    chan struct{}

	posted    atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// Stats is a snapshot of mailbox counters.
type Stats struct {
	Capacity  int   `json:"capacity"`
	Queued    int   `json:"queued"`
	Posted    int64 `json:"posted"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// New returns a mailbox holding at most capacity undelivered messages.
// A capacity below 1 is treated as 1.
func New[T any](capacity int) *Mailbox[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox[T]{
		queue:  make(chan T, capacity),
		closed: make(chan struct{}),
	}
}

// Post enqueues msg. It returns false if the mailbox is full or closed.
func (m *Mailbox[T]) Post(msg T) bool {
	select {
	case <-m.closed:
		return false
	default:
	}
	select {
	case m.queue <- msg:
		m.posted.Add(1)
		return true
	default:
		m.dropped.Add(1)
		return false
	}
}

// Run delivers queued messages to deliver, in order, until ctx is done or the
// mailbox is closed. Messages still queued at close are delivered first.
func (m *Mailbox[T]) Run(ctx context.Context, deliver func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			deliver(msg)
			m.delivered.Add(1)
		case <-m.closed:
			for {
				select {
				case msg := <-m.queue:
					deliver(msg)
					m.delivered.Add(1)
				default:
					return
				}
			}
		}
	}
}

// Close stops accepting messages. It is safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *Mailbox[T]) Stats() Stats {
	return Stats{
		Capacity:  cap(m.queue),
		Queued:    len(m.queue),
		Posted:    m.posted.Load(),
		Delivered: m.delivered.Load(),
		Dropped:   m.dropped.Load(),
	}
}
