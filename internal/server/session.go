package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"

	"github.com/torosent/calltime/internal/admission"
	"github.com/torosent/calltime/internal/metrics"
	"github.com/torosent/calltime/internal/middleware"
	"github.com/torosent/calltime/internal/timing"
	"github.com/torosent/calltime/internal/tracing"
	"github.com/torosent/calltime/internal/transport"
)

// Session is one accepted connection, holding its admission permit until it
// closes.
type Session struct {
	ID      ulid.ULID
	Remote  string
	Started time.Time

	conn   *transport.TrackedConn
	permit *admission.Permit
}

func newSession(conn net.Conn, permit *admission.Permit) *Session {
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Session{
		ID:      ulid.Make(),
		Remote:  remote,
		Started: time.Now(),
		conn:    transport.Track(conn),
		permit:  permit,
	}
}

// Outcome describes how a session ended.
type Outcome struct {
	ID       string              `json:"id"`
	Remote   string              `json:"remote"`
	Kind     transport.ErrorKind `json:"-"`
	Err      error               `json:"-"`
	Lifetime time.Duration       `json:"-"`
	Requests timing.Snapshot     `json:"requests"`
	Traffic  transport.ConnStats `json:"traffic"`
}

// serveSession drives the HTTP/2 server side of one connection until the
// peer goes away or the connection is closed. Each stream runs through a
// per-connection timed request handler.
func (s *Server) serveSession(ctx context.Context, sess *Session) (Outcome, error) {
	defer sess.permit.Release()
	s.metrics.ConnectionAccepted()

	requests := timing.New()
	handler := middleware.WithTiming(metrics.InstrumentRequests(s.handler, s.metrics), requests)

	streams := &streamTracker{}
	s.h2.ServeConn(sess.conn, &http2.ServeConnOpts{
		Context: ctx,
		Handler: s.httpHandler(handler, streams),
	})
	// Handlers still running here lost their connection mid-response.
	inFlight := streams.active.Load()
	_ = sess.conn.Close()
	streams.wg.Wait()

	termErr := sess.conn.Err()
	kind := transport.ClassifyPending(termErr, inFlight > 0 || streams.undelivered.Load() > 0)
	lifetime := time.Since(sess.Started)

	if kind == transport.BrokenPipe {
		s.brokenPipes.Inc()
		s.metrics.BrokenPipe()
	}
	s.metrics.ConnectionClosed(kind.String(), lifetime)

	s.writeSummary("session: %s, requests: %s\n", timing.FormatDuration(lifetime), requests.Render())

	out := Outcome{
		ID:       sess.ID.String(),
		Remote:   sess.Remote,
		Kind:     kind,
		Lifetime: lifetime,
		Requests: requests.Snapshot(),
		Traffic:  sess.conn.Stats(),
	}
	s.logger.Debugw("session closed",
		"id", out.ID,
		"remote", out.Remote,
		"kind", kind.String(),
		"lifetime", lifetime,
		"requests", out.Requests.Count,
		"bytes_read", out.Traffic.BytesRead,
		"bytes_written", out.Traffic.BytesWritten,
	)

	if kind == transport.Other {
		out.Err = termErr
		return out, fmt.Errorf("session %s: %w", out.ID, termErr)
	}
	return out, nil
}

// streamTracker follows the stream handlers of one connection.
type streamTracker struct {
	wg          sync.WaitGroup
	active      atomic.Int64
	undelivered atomic.Int64
}

func (t *streamTracker) begin() {
	t.wg.Add(1)
	t.active.Add(1)
}

func (t *streamTracker) end(delivered bool) {
	if !delivered {
		t.undelivered.Add(1)
	}
	t.active.Add(-1)
	t.wg.Done()
}

// httpHandler adapts a request handler to the HTTP/2 server. A response
// counts as delivered once it is written while the stream is still open.
func (s *Server) httpHandler(h middleware.Handler[*http.Request, []byte], streams *streamTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streams.begin()
		delivered := false
		defer func() { streams.end(delivered) }()

		stream := r.Context()
		ctx := stream
		var span trace.Span
		if s.tracer != nil {
			ctx, span = tracing.StartServerSpan(ctx, s.tracer, r)
			r = r.WithContext(ctx)
		}

		body, err := h.Invoke(ctx, r)
		if span != nil {
			tracing.EndSpan(span, err)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) && stream.Err() != nil {
				// Stream reset or connection gone; nothing to write.
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			delivered = stream.Err() == nil
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		_, werr := w.Write(body)
		delivered = werr == nil && stream.Err() == nil
	})
}
