package middleware

import (
	"context"
	"time"

	"github.com/torosent/calltime/internal/timing"
)

// Handler handles one unit of work: a request, a call or a whole connection.
type Handler[Req, Resp any] interface {
	Invoke(ctx context.Context, req Req) (Resp, error)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as Handlers.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Invoke calls f(ctx, req).
func (f HandlerFunc[Req, Resp]) Invoke(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Readier is implemented by handlers that can report back-pressure. Ready
// blocks until the handler can accept another Invoke or ctx ends.
type Readier interface {
	Ready(ctx context.Context) error
}

// Ready waits on h when it implements Readier and returns nil otherwise.
func Ready[Req, Resp any](ctx context.Context, h Handler[Req, Resp]) error {
	if r, ok := h.(Readier); ok {
		return r.Ready(ctx)
	}
	return nil
}

// Timed records the wall-clock duration of every Invoke into a shared
// CallTiming. It never changes the wrapped handler's outcome.
type Timed[Req, Resp any] struct {
	inner  Handler[Req, Resp]
	timing *timing.CallTiming
	now    func() time.Time
}

// WithTiming wraps inner so each call is recorded into ct. A nil ct gets a
// fresh accumulator, reachable through Timing.
func WithTiming[Req, Resp any](inner Handler[Req, Resp], ct *timing.CallTiming) *Timed[Req, Resp] {
	if ct == nil {
		ct = timing.New()
	}
	return &Timed[Req, Resp]{inner: inner, timing: ct, now: time.Now}
}

// Invoke delegates to the wrapped handler. The sample is recorded on every
// exit path, including a panic unwinding through the call.
func (t *Timed[Req, Resp]) Invoke(ctx context.Context, req Req) (Resp, error) {
	start := t.now()
	defer func() {
		t.timing.Add(t.now().Sub(start))
	}()
	return t.inner.Invoke(ctx, req)
}

// Ready passes readiness through from the wrapped handler unchanged.
func (t *Timed[Req, Resp]) Ready(ctx context.Context) error {
	return Ready(ctx, t.inner)
}

// Timing returns the accumulator shared by every call through t.
func (t *Timed[Req, Resp]) Timing() *timing.CallTiming {
	return t.timing
}
