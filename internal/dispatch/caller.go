package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/calltime/internal/tracing"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// RoundTripSession is the part of a transport session a caller needs.
type RoundTripSession interface {
	Addr() string
	Ready(ctx context.Context) error
	RoundTrip(req *http.Request) (*http.Response, error)
}

// SessionCaller issues GET requests over a single multiplexed session.
type SessionCaller struct {
	sess      RoundTripSession
	tracer    trace.Tracer
	propagate bool
}

// NewSessionCaller returns a caller over sess. A nil tracer disables spans;
// propagate controls whether trace context is sent in request headers.
func NewSessionCaller(sess RoundTripSession, tracer trace.Tracer, propagate bool) *SessionCaller {
	return &SessionCaller{sess: sess, tracer: tracer, propagate: propagate}
}

// Ready waits until the session can accept another request.
func (c *SessionCaller) Ready(ctx context.Context) error {
	return c.sess.Ready(ctx)
}

// Invoke sends req on the session and reads the response body.
func (c *SessionCaller) Invoke(ctx context.Context, req Request) (resp Response, err error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = tracing.StartRequestSpan(ctx, c.tracer, req.Path)
		defer func() {
			tracing.EndSpan(span, err, attribute.Int("http.response.status_code", resp.Status))
		}()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.sess.Addr()+req.Path, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	if c.tracer != nil && c.propagate {
		tracing.InjectHTTPHeaders(ctx, httpReq.Header)
	}

	httpResp, err := c.sess.RoundTrip(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return Response{Index: req.Index, Path: req.Path, Status: httpResp.StatusCode}, fmt.Errorf("read body: %w", err)
	}
	resp = Response{Index: req.Index, Path: req.Path, Status: httpResp.StatusCode, Body: body}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return resp, &HTTPError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
