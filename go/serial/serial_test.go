package serial

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type counter struct {
	seen []int
}

func TestEventsKeepFIFOOrder(t *testing.T) {
	var done = make(chan struct{})
	var pool = NewPool(func(h *Holder[counter, int], events []int) {
		h.WithData(func(c *counter) {
			c.seen = append(c.seen, events...)
			if len(c.seen) == 1000 {
				close(done)
			}
		})
	})

	var h = NewHolder[counter, int](&counter{})
	for i := 0; i < 1000; i++ {
		pool.Dispatch(h, i)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not fully drained")
	}

	h.WithData(func(c *counter) {
		require.Len(t, c.seen, 1000)
		for i, v := range c.seen {
			require.Equal(t, i, v)
		}
	})
}

func TestSingleWorkerPerHolder(t *testing.T) {
	var active int32
	var overlapped int32
	var wg sync.WaitGroup

	var pool = NewPool(func(h *Holder[struct{}, int], events []int) {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		wg.Add(-len(events))
	})

	var h = NewHolder[struct{}, int](&struct{}{})
	wg.Add(64)
	for i := 0; i < 64; i++ {
		pool.Dispatch(h, i)
	}
	wg.Wait()
	require.Zero(t, atomic.LoadInt32(&overlapped), "two workers drained one holder concurrently")
}

func TestHoldersDrainIndependently(t *testing.T) {
	var mu sync.Mutex
	var got = map[*Holder[counter, int]][]int{}
	var wg sync.WaitGroup

	var pool = NewPool(func(h *Holder[counter, int], events []int) {
		mu.Lock()
		got[h] = append(got[h], events...)
		mu.Unlock()
		wg.Add(-len(events))
	})

	var a = NewHolder[counter, int](&counter{})
	var b = NewHolder[counter, int](&counter{})
	wg.Add(200)
	for i := 0; i < 100; i++ {
		pool.Dispatch(a, i)
		pool.Dispatch(b, i+1000)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got[a], 100)
	require.Len(t, got[b], 100)
	for i, v := range got[a] {
		require.Equal(t, i, v)
	}
	for i, v := range got[b] {
		require.Equal(t, i+1000, v)
	}
}
