// Package serial serializes event handling per holder: events for a holder
// are processed in arrival order by at most one worker goroutine at a time,
// while different holders proceed concurrently.
package serial

import "sync"

// Holder pairs a guarded datum with a pending-event buffer. D is the state
// being serialized over, E the event type delivered to the pool handler.
type Holder[D, E any] struct {
	dataMu sync.Mutex
	data   *D

	stateMu sync.Mutex
	running bool
	pending []E
}

func NewHolder[D, E any](data *D) *Holder[D, E] {
	return &Holder[D, E]{data: data}
}

// WithData runs f with exclusive access to the holder's datum.
func (h *Holder[D, E]) WithData(f func(*D)) {
	h.dataMu.Lock()
	defer h.dataMu.Unlock()
	f(h.data)
}

// Pool dispatches events to holders. Handler is invoked with drained event
// batches; batches for one holder never overlap and preserve FIFO order.
type Pool[D, E any] struct {
	Handler func(h *Holder[D, E], events []E)
}

func NewPool[D, E any](handler func(h *Holder[D, E], events []E)) *Pool[D, E] {
	return &Pool[D, E]{Handler: handler}
}

// Dispatch enqueues ev for h, spawning a worker if none is draining h.
// It never blocks.
func (p *Pool[D, E]) Dispatch(h *Holder[D, E], ev E) {
	h.stateMu.Lock()
	h.pending = append(h.pending, ev)
	var spawn = !h.running
	if spawn {
		h.running = true
	}
	h.stateMu.Unlock()

	if spawn {
		go p.drain(h)
	}
}

func (p *Pool[D, E]) drain(h *Holder[D, E]) {
	for {
		h.stateMu.Lock()
		if len(h.pending) == 0 {
			h.running = false
			h.stateMu.Unlock()
			return
		}
		var batch = h.pending
		h.pending = nil
		h.stateMu.Unlock()

		p.Handler(h, batch)
	}
}
