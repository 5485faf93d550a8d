package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/torosent/calltime/internal/admission"
	"github.com/torosent/calltime/internal/logging"
	"github.com/torosent/calltime/internal/metrics"
	"github.com/torosent/calltime/internal/middleware"
	"github.com/torosent/calltime/internal/timing"
)

const acceptBackoff = 100 * time.Millisecond

// Options configure a Server. Zero values get sensible defaults.
type Options struct {
	// Admission bounds concurrently served connections (default capacity 5).
	Admission *admission.Controller
	// Handler produces the response body for each request (default EchoHandler).
	Handler middleware.Handler[*http.Request, []byte]
	// ConnTiming accumulates connection lifetimes across the process.
	ConnTiming *timing.CallTiming
	// BrokenPipes counts sessions ended by a broken pipe.
	BrokenPipes *BrokenPipeCounter
	// MaxConcurrentStreams caps HTTP/2 streams per connection (0 uses the library default).
	MaxConcurrentStreams uint32

	Logger  *zap.SugaredLogger
	Summary io.Writer // receives one "session: ..." line per closed connection
	Metrics *metrics.Collector
	Tracer  trace.Tracer
}

// Server accepts connections behind an admission controller and serves each
// one as a multiplexed HTTP/2 session.
type Server struct {
	admission   *admission.Controller
	handler     middleware.Handler[*http.Request, []byte]
	brokenPipes *BrokenPipeCounter
	logger      *zap.SugaredLogger
	metrics     *metrics.Collector
	tracer      trace.Tracer
	h2          *http2.Server

	conns *middleware.Timed[*Session, Outcome]

	summaryMu sync.Mutex
	summary   io.Writer

	mu        sync.Mutex
	listeners map[net.Listener]context.CancelFunc
	sessions  map[*Session]struct{}
	wg        sync.WaitGroup
	closing   atomic.Bool
}

// New creates a Server. Unset options fall back to defaults.
func New(opts Options) *Server {
	if opts.Admission == nil {
		opts.Admission = admission.New(admission.DefaultCapacity)
	}
	if opts.Handler == nil {
		opts.Handler = NewEchoHandler(DefaultMinDelay, DefaultMaxDelay)
	}
	if opts.ConnTiming == nil {
		opts.ConnTiming = timing.New()
	}
	if opts.BrokenPipes == nil {
		opts.BrokenPipes = &BrokenPipeCounter{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Summary == nil {
		opts.Summary = io.Discard
	}

	s := &Server{
		admission:   opts.Admission,
		handler:     opts.Handler,
		brokenPipes: opts.BrokenPipes,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		h2:          &http2.Server{MaxConcurrentStreams: opts.MaxConcurrentStreams},
		summary:     opts.Summary,
		listeners:   make(map[net.Listener]context.CancelFunc),
		sessions:    make(map[*Session]struct{}),
	}

	var serve middleware.Handler[*Session, Outcome] = middleware.HandlerFunc[*Session, Outcome](s.serveSession)
	serve = middleware.WithLogging(serve, logging.FailureLogger{Logger: opts.Logger, Msg: "session failed"})
	s.conns = middleware.WithTiming(serve, opts.ConnTiming)
	return s
}

// ConnTiming returns the process-wide connection accumulator.
func (s *Server) ConnTiming() *timing.CallTiming {
	return s.conns.Timing()
}

// BrokenPipes returns the shared broken-pipe counter.
func (s *Server) BrokenPipes() *BrokenPipeCounter {
	return s.brokenPipes
}

// Serve accepts connections on ln until ctx ends or Shutdown is called.
// A permit is taken before each Accept, so at most Capacity connections are
// ever being served. Serve returns nil on a clean stop. Sessions already
// running are not cancelled when Serve returns; Shutdown closes them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.closing.Load() {
		return nil
	}
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.trackListener(ln, cancel)
	defer s.untrackListener(ln)

	stop := context.AfterFunc(serveCtx, func() { _ = ln.Close() })
	defer stop()

	sessionCtx := context.WithoutCancel(ctx)
	s.logger.Infow("listening", "addr", ln.Addr().String(), "max_connections", s.admission.Capacity())

	for {
		permit, err := s.admission.Acquire(serveCtx)
		if err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			permit.Release()
			if s.closing.Load() || serveCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warnw("accept failed", "error", err, "backoff", acceptBackoff)
			select {
			case <-time.After(acceptBackoff):
				continue
			case <-serveCtx.Done():
				return nil
			}
		}

		sess := newSession(conn, permit)
		if !s.trackSession(sess) {
			_ = conn.Close()
			permit.Release()
			return nil
		}
		s.logger.Debugw("connection accepted", "id", sess.ID.String(), "remote", sess.Remote)

		go func() {
			defer s.wg.Done()
			defer s.untrackSession(sess)
			_, _ = s.conns.Invoke(sessionCtx, sess)
		}()
	}
}

// Shutdown stops every Serve loop, closes live sessions and waits for them
// to finish or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	s.mu.Lock()
	for ln, cancel := range s.listeners {
		cancel()
		_ = ln.Close()
	}
	for sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (s *Server) trackListener(ln net.Listener, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[ln] = cancel
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

// trackSession registers sess unless the server is shutting down.
func (s *Server) trackSession(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

func (s *Server) writeSummary(format string, args ...interface{}) {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	fmt.Fprintf(s.summary, format, args...)
}
