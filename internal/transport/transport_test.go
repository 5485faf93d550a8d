package transport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"golang.org/x/net/http2"

	"github.com/torosent/calltime/internal/transport"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want transport.ErrorKind
	}{
		{name: "nil", err: nil, want: transport.Clean},
		{name: "eof", err: io.EOF, want: transport.Clean},
		{name: "closed", err: fmt.Errorf("read: %w", net.ErrClosed), want: transport.Clean},
		{name: "closed pipe", err: io.ErrClosedPipe, want: transport.Clean},
		{
			name: "epipe",
			err:  &net.OpError{Op: "write", Net: "tcp", Err: os.NewSyscallError("write", syscall.EPIPE)},
			want: transport.BrokenPipe,
		},
		{
			name: "reset",
			err:  &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)},
			want: transport.BrokenPipe,
		},
		{name: "other", err: errors.New("boom"), want: transport.Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transport.Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyPending(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		pending bool
		want    transport.ErrorKind
	}{
		{name: "eof idle", err: io.EOF, want: transport.Clean},
		{name: "eof pending", err: io.EOF, pending: true, want: transport.BrokenPipe},
		{name: "local close pending", err: fmt.Errorf("read: %w", net.ErrClosed), pending: true, want: transport.Clean},
		{name: "nil pending", err: nil, pending: true, want: transport.Clean},
		{
			name:    "reset pending",
			err:     &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)},
			pending: true,
			want:    transport.BrokenPipe,
		},
		{name: "other pending", err: errors.New("boom"), pending: true, want: transport.Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transport.ClassifyPending(tt.err, tt.pending); got != tt.want {
				t.Fatalf("ClassifyPending(%v, %v) = %v, want %v", tt.err, tt.pending, got, tt.want)
			}
		})
	}
}

func TestErrorKindString(t *testing.T) {
	if got := transport.BrokenPipe.String(); got != "broken_pipe" {
		t.Fatalf("String() = %q", got)
	}
}

func TestTrackedConnPrefersWriteError(t *testing.T) {
	a, b := net.Pipe()
	tc := transport.Track(a)
	if transport.Track(tc) != tc {
		t.Fatal("Track() rewrapped a tracked conn")
	}

	go func() {
		buf := make([]byte, 4)
		_, _ = io.ReadFull(b, buf)
		_ = b.Close()
	}()

	if _, err := tc.Write([]byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := tc.Read(make([]byte, 1)); err == nil {
		t.Fatal("Read() after peer close returned no error")
	}
	if _, err := tc.Write([]byte("x")); err == nil {
		t.Fatal("Write() after peer close returned no error")
	}

	if !errors.Is(tc.Err(), io.ErrClosedPipe) {
		t.Fatalf("Err() = %v, want the write error", tc.Err())
	}
	stats := tc.Stats()
	if stats.BytesWritten != 4 {
		t.Fatalf("BytesWritten = %d, want 4", stats.BytesWritten)
	}
	if stats.Writes != 2 || stats.Reads != 1 {
		t.Fatalf("Writes=%d Reads=%d, want 2 and 1", stats.Writes, stats.Reads)
	}
}

func TestDialConnectTimeout(t *testing.T) {
	// Accepts TCP but never speaks HTTP/2.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	start := time.Now()
	_, err = transport.Dial(context.Background(), ln.Addr().String(), transport.DialOptions{Timeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("Dial() to a silent peer succeeded")
	}
	if !errors.Is(err, transport.ErrConnectTimeout) {
		t.Fatalf("Dial() error = %v, want connect timeout", err)
	}
	var ce *transport.ConnectError
	if !errors.As(err, &ce) || ce.Op != "handshake" {
		t.Fatalf("Dial() error = %#v, want handshake ConnectError", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Dial() took %s, timeout not honored", elapsed)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = transport.Dial(context.Background(), addr, transport.DialOptions{Timeout: time.Second})
	var ce *transport.ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Dial() error = %v, want ConnectError", err)
	}
	if ce.Op != "dial" || ce.TimedOut() {
		t.Fatalf("ConnectError = %+v, want non-timeout dial failure", ce)
	}
	if errors.Is(err, transport.ErrConnectTimeout) {
		t.Fatal("refused connection reported as timeout")
	}
}

func TestDialUnroutableTimesOut(t *testing.T) {
	// 10.255.255.1 is private and normally unrouted, so the SYN goes unanswered.
	const timeout = 150 * time.Millisecond
	start := time.Now()
	_, err := transport.Dial(context.Background(), "10.255.255.1:9", transport.DialOptions{Timeout: timeout})
	elapsed := time.Since(start)

	var ce *transport.ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Dial() error = %v, want ConnectError", err)
	}
	if ce.Op != "dial" {
		t.Fatalf("ConnectError.Op = %q, want dial", ce.Op)
	}
	if !ce.TimedOut() {
		if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
			t.Skipf("no route in this environment: %v", err)
		}
		t.Fatalf("Dial() error = %v, want timeout", err)
	}
	if !errors.Is(err, transport.ErrConnectTimeout) {
		t.Fatalf("Dial() error = %v, want ErrConnectTimeout", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("Dial() took %s with a %s timeout", elapsed, timeout)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	srv := &http2.Server{MaxConcurrentStreams: 2}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.ServeConn(c, &http2.ServeConnOpts{
				Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = io.WriteString(w, r.URL.Path)
				}),
			})
		}
	}()

	sess, err := transport.Dial(context.Background(), ln.Addr().String(), transport.DialOptions{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := sess.Ready(ctx); err != nil {
			t.Fatalf("Ready() error = %v", err)
		}
		path := fmt.Sprintf("/%d", i)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+sess.Addr()+path, nil)
		resp, err := sess.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != path {
			t.Fatalf("body = %q, want %q", body, path)
		}
	}
	if sess.Stats().BytesRead == 0 {
		t.Fatal("Stats() recorded no traffic")
	}

	_ = sess.Close()
	if err := sess.Ready(ctx); !errors.Is(err, transport.ErrSessionClosed) {
		t.Fatalf("Ready() after Close = %v, want ErrSessionClosed", err)
	}
}
