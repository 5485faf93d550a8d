package transport

import (
	"net"
	"sync"
	"sync/atomic"
)

// ConnStats is a snapshot of a TrackedConn's traffic counters.
type ConnStats struct {
	BytesRead    int64
	BytesWritten int64
	Reads        int64
	Writes       int64
}

// TrackedConn wraps a net.Conn, counting traffic and remembering the first
// read and the first write error. The HTTP/2 server does not surface the
// I/O error that ended a connection, so this is where it is recovered.
type TrackedConn struct {
	net.Conn

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	reads        atomic.Int64
	writes       atomic.Int64

	mu       sync.Mutex
	readErr  error
	writeErr error
}

// Track wraps c. Wrapping an already tracked conn returns it unchanged.
func Track(c net.Conn) *TrackedConn {
	if tc, ok := c.(*TrackedConn); ok {
		return tc
	}
	return &TrackedConn{Conn: c}
}

func (c *TrackedConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.reads.Add(1)
	c.bytesRead.Add(int64(n))
	if err != nil {
		c.mu.Lock()
		if c.readErr == nil {
			c.readErr = err
		}
		c.mu.Unlock()
	}
	return n, err
}

func (c *TrackedConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.writes.Add(1)
	c.bytesWritten.Add(int64(n))
	if err != nil {
		c.mu.Lock()
		if c.writeErr == nil {
			c.writeErr = err
		}
		c.mu.Unlock()
	}
	return n, err
}

// Err returns the error that terminated the connection, preferring the
// first write error over the first read error. A peer that goes away while
// we are still writing shows up as a write error even when the reader only
// ever saw EOF. A bare EOF with responses still owed needs ClassifyPending.
func (c *TrackedConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	return c.readErr
}

// Stats returns the current traffic counters.
func (c *TrackedConn) Stats() ConnStats {
	return ConnStats{
		BytesRead:    c.bytesRead.Load(),
		BytesWritten: c.bytesWritten.Load(),
		Reads:        c.reads.Load(),
		Writes:       c.writes.Load(),
	}
}
