package server

import "sync/atomic"

// BrokenPipeCounter counts connections that ended because the peer went away
// mid-write. It is shared by every session and read by the reporter.
type BrokenPipeCounter struct {
	n atomic.Int64
}

// Inc records one broken connection.
func (c *BrokenPipeCounter) Inc() {
	c.n.Add(1)
}

// Load returns the number of broken connections so far.
func (c *BrokenPipeCounter) Load() int64 {
	return c.n.Load()
}
