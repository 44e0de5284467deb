package tracker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/delayqueue"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/serial"
)

type eventKind int

const (
	evNew eventKind = iota
	evAppend
	evDelay
)

type event[T any] struct {
	kind eventKind
	item T // append payload only
}

type track[T any] struct {
	item  T
	ready bool
	// retired flips when the item is handed downstream; late event batches
	// must not touch the item past that point.
	retired bool
}

// Config carries the per-kind aggregation knobs.
type Config struct {
	// Name labels log lines and metrics ("facetrack" / "vehicletrack").
	Name string
	// ReadyDelay bounds how long a not-yet-ready track waits before being
	// forced out.
	ReadyDelay time.Duration
	// CleanDelay is how long a forwarded uuid is remembered so that late
	// bursts are dropped instead of resurrecting the track.
	CleanDelay time.Duration
}

// Aggregator coalesces notify items by uuid. T is the pipeline item type;
// key/ready/merge/finalize capture the kind-specific behavior.
type Aggregator[T any] struct {
	cfg Config

	in  *queue.Queue[T]
	out func(T)

	key      func(T) string
	ready    func(T) bool
	merge    func(dst, src T)
	finalize func(T)

	pool    *serial.Pool[track[T], event[T]]
	readyDQ *delayqueue.Queue
	cleanDQ *delayqueue.Queue

	// active and seen are touched only by the Run loop.
	active map[string]*serial.Holder[track[T], event[T]]
	seen   map[string]struct{}

	forwardCh chan string
}

func newAggregator[T any](
	cfg Config,
	in *queue.Queue[T],
	out func(T),
	key func(T) string,
	ready func(T) bool,
	merge func(dst, src T),
	finalize func(T),
) *Aggregator[T] {
	var a = &Aggregator[T]{
		cfg:       cfg,
		in:        in,
		out:       out,
		key:       key,
		ready:     ready,
		merge:     merge,
		finalize:  finalize,
		readyDQ:   delayqueue.New(),
		cleanDQ:   delayqueue.New(),
		active:    make(map[string]*serial.Holder[track[T], event[T]]),
		seen:      make(map[string]struct{}),
		forwardCh: make(chan string, 100),
	}
	a.pool = serial.NewPool(a.handle)
	return a
}

func (a *Aggregator[T]) Name() string { return a.cfg.Name + "-aggregator" }

// Run multiplexes incoming items, delay expirations and forward requests.
// All map state is owned by this loop.
func (a *Aggregator[T]) Run(ctx context.Context) {
	defer a.readyDQ.Abandon()
	defer a.cleanDQ.Abandon()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-a.in.C():
			if !ok {
				return
			}
			a.processItem(item)
		case uuid := <-a.readyDQ.Expired():
			a.processReadyTimeout(uuid)
		case uuid := <-a.cleanDQ.Expired():
			a.processCleanTimeout(uuid)
		case uuid := <-a.forwardCh:
			a.processForward(uuid)
		}
	}
}

func (a *Aggregator[T]) processItem(item T) {
	var uuid = a.key(item)
	tracksReceived.WithLabelValues(a.cfg.Name).Inc()

	// Remembered but no longer active: the track was already forwarded,
	// late bursts for it are dropped.
	_, remembered := a.seen[uuid]
	holder, live := a.active[uuid]
	if remembered && !live {
		log.WithFields(log.Fields{"kind": a.cfg.Name, "uuid": uuid}).
			Warn("track already forwarded, dropping late burst")
		return
	}

	if live {
		a.pool.Dispatch(holder, event[T]{kind: evAppend, item: item})
		return
	}

	holder = serial.NewHolder[track[T], event[T]](&track[T]{
		item:  item,
		ready: a.ready(item),
	})
	a.active[uuid] = holder
	a.seen[uuid] = struct{}{}
	a.pool.Dispatch(holder, event[T]{kind: evNew})

	a.cleanDQ.Schedule(uuid, a.cfg.CleanDelay)
	if !holderReady(holder) {
		a.readyDQ.Schedule(uuid, a.cfg.ReadyDelay)
	}
}

func holderReady[T any](h *serial.Holder[track[T], event[T]]) bool {
	var ready bool
	h.WithData(func(tr *track[T]) { ready = tr.ready })
	return ready
}

func (a *Aggregator[T]) processReadyTimeout(uuid string) {
	if holder, ok := a.active[uuid]; ok {
		a.pool.Dispatch(holder, event[T]{kind: evDelay})
		return
	}
	if _, ok := a.seen[uuid]; !ok {
		log.WithFields(log.Fields{"kind": a.cfg.Name, "uuid": uuid}).
			Error("ready timeout for unknown track")
	}
}

func (a *Aggregator[T]) processCleanTimeout(uuid string) {
	delete(a.seen, uuid)
}

// processForward retires the track and hands the consolidated item on. The
// item is moved out under the holder lock, with finalize run there too, so a
// drain racing this forward can never mutate what downstream received.
func (a *Aggregator[T]) processForward(uuid string) {
	var holder, ok = a.active[uuid]
	if !ok {
		return
	}
	delete(a.active, uuid)

	var item T
	var moved bool
	holder.WithData(func(tr *track[T]) {
		if tr.retired {
			return
		}
		tr.retired = true
		if a.finalize != nil {
			a.finalize(tr.item)
		}
		item = tr.item
		moved = true
	})
	if !moved {
		return
	}
	tracksForwarded.WithLabelValues(a.cfg.Name).Inc()
	a.out(item)
}

// handle drains one event batch for a track. The forward decision mirrors
// the ready-flag transition: a forward fires when a new track arrives
// already ready, or when this batch flipped it to ready.
func (a *Aggregator[T]) handle(h *serial.Holder[track[T], event[T]], events []event[T]) {
	var uuid string
	var forward bool

	h.WithData(func(tr *track[T]) {
		if tr.retired {
			return
		}
		var readyOld = tr.ready
		var newed, appended, delayed bool

		for _, ev := range events {
			switch ev.kind {
			case evNew:
				newed = true
			case evAppend:
				appended = true
				a.merge(tr.item, ev.item)
			case evDelay:
				delayed = true
			}
		}

		if appended || delayed {
			tr.ready = true
		}
		forward = (newed && readyOld) || (!readyOld && tr.ready)
		uuid = a.key(tr.item)
	})

	if forward {
		a.forwardCh <- uuid
	}
}
