package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/torosent/calltime/internal/logging"
	"github.com/torosent/calltime/internal/middleware"
	"github.com/torosent/calltime/internal/timing"
)

// MaxRequests bounds the batch size of a single Run.
const MaxRequests = 100

// ErrInvalidCount is returned by Run for a batch size outside 1..MaxRequests.
var ErrInvalidCount = errors.New("request count out of range")

// Request is the i-th call of a batch; its path is "/i".
type Request struct {
	Index int
	Path  string
}

// NewRequest returns request i, whose path is "/<i>".
func NewRequest(i int) Request {
	return Request{Index: i, Path: "/" + strconv.Itoa(i)}
}

// Response is a completed call.
type Response struct {
	Index  int
	Path   string
	Status int
	Body   []byte
}

// HTTPError represents a request answered with an error status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Summary captures a finished (or aborted) batch.
type Summary struct {
	Requested int
	Completed int
	Duration  time.Duration
	Timing    timing.Snapshot
}

// Dispatcher issues a batch of calls concurrently over one caller, waiting
// for readiness before each issue and recording every call's latency.
type Dispatcher struct {
	opt   Options
	timed *middleware.Timed[Request, Response]
}

// New builds a Dispatcher, filling unset options with defaults.
func New(opt Options) *Dispatcher {
	opt.normalize()
	caller := middleware.WithLogging(opt.Caller, logging.FailureLogger{Logger: opt.Logger, Msg: "request failed"})
	return &Dispatcher{opt: opt, timed: middleware.WithTiming(caller, opt.Timing)}
}

// Timing returns the accumulator every call is recorded into.
func (d *Dispatcher) Timing() *timing.CallTiming {
	return d.timed.Timing()
}

// Run issues requests /1 through /n. Each completed response is passed to
// yield on the calling goroutine, in completion order. The first failure
// cancels the remaining calls and is returned; responses already yielded
// stay yielded.
func (d *Dispatcher) Run(ctx context.Context, n int, yield func(Response)) (Summary, error) {
	if n < 1 || n > MaxRequests {
		return Summary{}, fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidCount, n, MaxRequests)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	results := make(chan Response, n)
	limiter := d.opt.LimiterFactory(d.opt.RatePerSecond)

	g.Go(func() error {
		for i := 1; i <= n; i++ {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			if err := d.timed.Ready(gctx); err != nil {
				return fmt.Errorf("wait for ready: %w", err)
			}
			req := NewRequest(i)
			g.Go(func() error {
				resp, err := d.timed.Invoke(gctx, req)
				if err != nil {
					return fmt.Errorf("request %s: %w", req.Path, err)
				}
				results <- resp
				return nil
			})
		}
		return nil
	})

	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()

	completed := 0
	emit := func(resp Response) {
		completed++
		if yield != nil {
			yield(resp)
		}
	}

	var err error
	waited := false
collect:
	for completed < n {
		select {
		case resp := <-results:
			emit(resp)
		case err = <-waitErr:
			waited = true
			if err != nil {
				break collect
			}
			// Every call has finished; the rest are buffered.
			for {
				select {
				case resp := <-results:
					emit(resp)
				default:
					break collect
				}
			}
		}
	}
	if !waited {
		err = <-waitErr
	}

	summary := Summary{
		Requested: n,
		Completed: completed,
		Duration:  time.Since(start),
		Timing:    d.timed.Timing().Snapshot(),
	}
	if err != nil {
		d.opt.Logger.Debugw("batch aborted", "completed", completed, "requested", n, "error", err)
		return summary, err
	}
	return summary, nil
}
