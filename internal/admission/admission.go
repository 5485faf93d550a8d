// Package admission bounds how many connections may be served at once.
package admission

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the number of connections served concurrently when no
// capacity is configured.
const DefaultCapacity = 5

// Controller is a fixed-size pool of permits. Waiters are served in FIFO
// order, so a released slot always goes to the longest waiter.
type Controller struct {
	sem         *semaphore.Weighted
	capacity    int64
	outstanding atomic.Int64
}

// Permit is one slot of a Controller. It must be released exactly once.
type Permit struct {
	c        *Controller
	released atomic.Bool
}

// New creates a Controller with the given capacity. Values below 1 become 1.
func New(capacity int64) *Controller {
	if capacity < 1 {
		capacity = 1
	}
	return &Controller{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done. On success the caller
// owns the returned Permit and must Release it.
func (c *Controller) Acquire(ctx context.Context) (*Permit, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	c.outstanding.Add(1)
	return &Permit{c: c}, nil
}

// TryAcquire takes a slot only if one is free right now.
func (c *Controller) TryAcquire() (*Permit, bool) {
	if !c.sem.TryAcquire(1) {
		return nil, false
	}
	c.outstanding.Add(1)
	return &Permit{c: c}, true
}

// Outstanding reports how many permits are currently held.
func (c *Controller) Outstanding() int64 {
	return c.outstanding.Load()
}

// Capacity reports the fixed pool size.
func (c *Controller) Capacity() int64 {
	return c.capacity
}

// Release returns the permit's slot to the pool and wakes one waiter.
// Releasing the same permit twice is a programming error and panics.
func (p *Permit) Release() {
	if !p.released.CompareAndSwap(false, true) {
		panic("admission: permit released twice")
	}
	p.c.outstanding.Add(-1)
	p.c.sem.Release(1)
}
