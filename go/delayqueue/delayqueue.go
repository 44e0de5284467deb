// Package delayqueue delivers string keys after a per-key delay. A single
// driver goroutine owns a deadline-ordered heap and sleeps until the next
// expiration, waking early when a new entry is scheduled. The driver is
// fully dormant while the queue is empty.
package delayqueue

import (
	"container/heap"
	"sync"
	"time"
)

type entry struct {
	key    string
	fireAt time.Time
	seq    uint64 // insertion order tie-break
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	var old = *h
	var n = len(old)
	var e = old[n-1]
	*h = old[:n-1]
	return e
}

// Queue delivers scheduled keys on Expired() once their delay elapses.
type Queue struct {
	mu     sync.Mutex
	h      entryHeap
	seq    uint64
	closed bool

	wake chan struct{}
	stop chan struct{}
	out  chan string
}

func New() *Queue {
	var q = &Queue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		out:  make(chan string, 64),
	}
	go q.drive()
	return q
}

// Schedule queues key for delivery after d. It never blocks.
func (q *Queue) Schedule(key string, d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	heap.Push(&q.h, entry{key: key, fireAt: time.Now().Add(d), seq: q.seq})

	// The send stays under mu: Close also closes wake under mu, so the
	// channel cannot close between the closed check and the send.
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Expired returns the delivery channel. It is closed after Close once all
// remaining entries have expired and been delivered.
func (q *Queue) Expired() <-chan string { return q.out }

// Close stops accepting new entries; already-scheduled entries still fire.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	q.mu.Unlock()
}

// Abandon tears the driver down immediately, dropping pending entries.
func (q *Queue) Abandon() {
	q.Close()
	select {
	case <-q.stop:
	default:
		close(q.stop)
	}
}

func (q *Queue) drive() {
	for {
		q.mu.Lock()
		if q.h.Len() == 0 {
			var closed = q.closed
			q.mu.Unlock()
			if closed {
				close(q.out)
				return
			}
			select {
			case <-q.wake:
			case <-q.stop:
				close(q.out)
				return
			}
			continue
		}

		var next = q.h[0]
		var now = time.Now()
		if !next.fireAt.After(now) {
			heap.Pop(&q.h)
			q.mu.Unlock()
			select {
			case q.out <- next.key:
			case <-q.stop:
				close(q.out)
				return
			}
			continue
		}
		var closed = q.closed
		q.mu.Unlock()

		var timer = time.NewTimer(next.fireAt.Sub(now))
		if closed {
			// wake is a closed channel now; wait on the timer alone.
			select {
			case <-timer.C:
			case <-q.stop:
				timer.Stop()
				close(q.out)
				return
			}
			continue
		}
		select {
		case <-timer.C:
		case <-q.wake:
			timer.Stop()
		case <-q.stop:
			timer.Stop()
			close(q.out)
			return
		}
	}
}
