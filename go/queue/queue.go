// Package queue provides an unbounded FIFO queue with a channel-based
// consumer side. Producers never block; consumers range over C().
package queue

import "sync"

// Queue is an unbounded multi-producer queue. A single pump goroutine moves
// buffered items onto the output channel, so Push returns immediately no
// matter how slow the consumer is.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	wake chan struct{}
	out  chan T
}

func New[T any]() *Queue[T] {
	var q = &Queue[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go q.pump()
	return q
}

// Push appends an item. It never blocks. Pushing after Close panics.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		panic("queue: push after close")
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// C returns the consumer channel. It is closed once Close has been called
// and all buffered items have been delivered.
func (q *Queue[T]) C() <-chan T { return q.out }

// Len reports the number of items not yet handed to the pump.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new items. Buffered items are still delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	q.mu.Unlock()
}

func (q *Queue[T]) pump() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			var closed = q.closed
			q.mu.Unlock()
			if closed {
				close(q.out)
				return
			}
			// Blocks until a Push signals or Close closes the channel;
			// either way re-check under the lock.
			<-q.wake
			continue
		}
		var v = q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.out <- v
	}
}
