package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

var (
	// ErrConnectTimeout matches connect failures caused by the connect timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrSessionClosed indicates the session can no longer take new requests.
	ErrSessionClosed = errors.New("session closed")
)

// ErrorKind classifies the terminal error of a connection.
type ErrorKind int

const (
	// Clean means the connection ended without an I/O failure.
	Clean ErrorKind = iota
	// BrokenPipe means the peer closed or reset its side while we still used it.
	BrokenPipe
	// Other is any other I/O failure.
	Other
)

func (k ErrorKind) String() string {
	switch k {
	case Clean:
		return "clean"
	case BrokenPipe:
		return "broken_pipe"
	default:
		return "other"
	}
}

// Classify maps a terminal connection error to an ErrorKind. A nil error,
// an orderly EOF and a locally closed connection are all Clean.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return Clean
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		return BrokenPipe
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return Clean
	default:
		return Other
	}
}

// ClassifyPending is Classify for a connection that still owed the peer
// responses when it ended. An EOF from the peer then means it hung up
// mid-response, which counts as BrokenPipe. A local close stays Clean.
func ClassifyPending(err error, pending bool) ErrorKind {
	kind := Classify(err)
	if pending && kind == Clean && errors.Is(err, io.EOF) {
		return BrokenPipe
	}
	return kind
}

// ConnectError reports a failed attempt to establish a Session.
type ConnectError struct {
	Op      string // "dial" or "handshake"
	Addr    string
	Timeout time.Duration
	Err     error

	timedOut bool
}

func (e *ConnectError) Error() string {
	if e.timedOut {
		return fmt.Sprintf("%s %s: connect timeout after %s", e.Op, e.Addr, e.Timeout)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is reports a match with ErrConnectTimeout for timed-out attempts.
func (e *ConnectError) Is(target error) bool {
	return e.timedOut && target == ErrConnectTimeout
}

// TimedOut reports whether the attempt ran out of time.
func (e *ConnectError) TimedOut() bool {
	return e.timedOut
}

func newConnectError(op, addr string, timeout time.Duration, deadlineHit bool, err error) *ConnectError {
	timedOut := deadlineHit || errors.Is(err, context.DeadlineExceeded)
	if !timedOut {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			timedOut = true
		}
	}
	return &ConnectError{Op: op, Addr: addr, Timeout: timeout, Err: err, timedOut: timedOut}
}
