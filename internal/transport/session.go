package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const (
	// DefaultConnectTimeout bounds dial plus HTTP/2 handshake.
	DefaultConnectTimeout = 2 * time.Second

	defaultReadyPoll = 2 * time.Millisecond
	maxReadyPoll     = 50 * time.Millisecond
)

// DialOptions configure Dial.
type DialOptions struct {
	Timeout         time.Duration // connect timeout covering dial and handshake (default 2s)
	KeepAlive       time.Duration // TCP keepalive period (default 30s)
	ReadIdleTimeout time.Duration // ping the server after this much read silence (0 disables)
	ReadyPoll       time.Duration // initial readiness poll interval (default 2ms)
}

func (o *DialOptions) normalize() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultConnectTimeout
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.ReadyPoll <= 0 {
		o.ReadyPoll = defaultReadyPoll
	}
}

// Session is one client-side HTTP/2 connection carrying many concurrent
// requests, each on its own stream.
type Session struct {
	addr string
	conn *TrackedConn
	cc   *http2.ClientConn
	poll time.Duration
}

// Dial connects to addr and completes the HTTP/2 handshake with prior
// knowledge (h2c). The whole attempt is bounded by opts.Timeout; on failure
// nothing is left open and the error is a *ConnectError.
func Dial(ctx context.Context, addr string, opts DialOptions) (*Session, error) {
	opts.normalize()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	dialer := &net.Dialer{KeepAlive: opts.KeepAlive}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newConnectError("dial", addr, opts.Timeout, deadlineHit(ctx), err)
	}
	conn := Track(raw)

	// Writes of the preface must not outlive the connect timeout either.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	t := &http2.Transport{
		AllowHTTP:       true,
		ReadIdleTimeout: opts.ReadIdleTimeout,
	}
	cc, err := t.NewClientConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, newConnectError("handshake", addr, opts.Timeout, deadlineHit(ctx), err)
	}

	// A PING round trip proves the server read our preface and answered with
	// its own SETTINGS.
	if err := cc.Ping(ctx); err != nil {
		_ = cc.Close()
		return nil, newConnectError("handshake", addr, opts.Timeout, deadlineHit(ctx), err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &Session{addr: addr, conn: conn, cc: cc, poll: opts.ReadyPoll}, nil
}

func deadlineHit(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}

// Addr returns the address the session was dialed with.
func (s *Session) Addr() string {
	return s.addr
}

// Ready blocks until the session can take another request and reserves a
// stream for it. The reservation is consumed by the next RoundTrip. It
// returns ErrSessionClosed once the connection is closing and ctx.Err() if
// ctx ends first.
func (s *Session) Ready(ctx context.Context) error {
	wait := s.poll
	for {
		if s.cc.ReserveNewRequest() {
			return nil
		}
		if st := s.cc.State(); st.Closed || st.Closing {
			return ErrSessionClosed
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > maxReadyPoll {
			wait = maxReadyPoll
		}
	}
}

// RoundTrip sends req on a new stream and waits for the response headers.
func (s *Session) RoundTrip(req *http.Request) (*http.Response, error) {
	return s.cc.RoundTrip(req)
}

// Stats returns traffic counters for the underlying connection.
func (s *Session) Stats() ConnStats {
	return s.conn.Stats()
}

// Shutdown sends GOAWAY and waits for in-flight requests to finish.
func (s *Session) Shutdown(ctx context.Context) error {
	return s.cc.Shutdown(ctx)
}

// Close closes the connection, failing any in-flight requests.
func (s *Session) Close() error {
	return s.cc.Close()
}
