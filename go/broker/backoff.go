// Package broker wraps the AMQP plumbing shared by the fleet processes:
// exchange/queue declaration, confirmed publishes, and the reconnect
// backoff.
package broker

import (
	"context"
	"time"
)

const (
	backoffStart = 2 * time.Second
	backoffMax   = 180 * time.Second
)

// Backoff implements the reconnect wait schedule: 2s doubling up to 180s,
// reset to 2s after a success.
type Backoff struct {
	wait time.Duration
}

func NewBackoff() *Backoff {
	return &Backoff{wait: backoffStart}
}

func (b *Backoff) Reset() {
	b.wait = backoffStart
}

// Next returns the current wait and doubles it for the next failure.
func (b *Backoff) Next() time.Duration {
	var cur = b.wait
	b.wait *= 2
	if b.wait > backoffMax {
		b.wait = backoffMax
	}
	return cur
}

// Wait sleeps for the next backoff interval. It returns false when ctx was
// cancelled before the interval elapsed.
func (b *Backoff) Wait(ctx context.Context) bool {
	var timer = time.NewTimer(b.Next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
