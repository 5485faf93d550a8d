package dispatch

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/calltime/internal/logging"
	"github.com/torosent/calltime/internal/middleware"
	"github.com/torosent/calltime/internal/timing"
)

// Caller issues one request. Implementations that can report back-pressure
// also implement middleware.Readier.
type Caller = middleware.Handler[Request, Response]

// Options configure the Dispatcher.
type Options struct {
	Caller         Caller                      // request executor (required)
	Timing         *timing.CallTiming          // shared accumulator (default: fresh)
	RatePerSecond  int                         // issuance pacing (0 means unlimited)
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	Logger         *zap.SugaredLogger
}

func (o *Options) normalize() {
	if o.Timing == nil {
		o.Timing = timing.New()
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}
